package comm

import (
	"encoding/json"
)

// WSMessage is the envelope every NATS and websocket payload travels in.
// SocketId is set when a message is addressed to one specific connection.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "cast-vote", "game-state"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// PlayerState is one row of the broadcast game snapshot.
type PlayerState struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Money       int64  `json:"money"`
	Influence   int64  `json:"influence"`
	Role        string `json:"role"`
	RoleID      int    `json:"role_id"`
	SpecialRole int    `json:"special_role"`
	IsObserver  bool   `json:"is_observer"`
	IsActive    bool   `json:"is_active"`
}

// GameStateData is the full snapshot pushed to every subscriber of a game.
type GameStateData struct {
	GameID            string        `json:"game_id"`
	Players           []PlayerState `json:"players"`
	IsVoting          bool          `json:"is_voting"`
	Paused            bool          `json:"paused"`
	ElectionRemaining int           `json:"election_remaining"`
}

// GameEventData is a bare event tag for a game room, e.g. "voting_started".
type GameEventData struct {
	GameID string `json:"game_id"`
	Event  string `json:"event"`
}

// PersonalData is a private message for a single user.
type PersonalData struct {
	UserID  int64          `json:"user_id"`
	Message string         `json:"message"`
	Level   string         `json:"level"`
	Data    map[string]any `json:"data,omitempty"`
}

// ChatData is relayed between clients of one game room without touching
// the game service.
type ChatData struct {
	GameID   string `json:"game_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}
