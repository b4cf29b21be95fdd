package ws

import (
	"encoding/json"
	"sync"

	"github.com/bizmono/monopoly-services/internal/comm"
	"github.com/bizmono/monopoly-services/internal/socketsvc/broker"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	gameMap sync.Map // to keep track of gameId with socketId
	userMap sync.Map // to keep track of userId with socketId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "join-room":
		s.handleJoinRoom(socketId, message)
	case "chat":
		s.handleChat(socketId, message)
	case "create-game", "delete-game", "join-game", "leave-game",
		"pause-game", "resume-game", "upgrade-role", "transfer-money",
		"cast-vote", "choose-banker", "ask-question", "answer-question",
		"grade-answer", "get-game-state":
		s.forwardToGameService(socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

// handleJoinRoom registers the socket for game broadcasts and personal
// messages, then forwards the join to the game service.
func (s *Ws) handleJoinRoom(socketId string, msg *comm.WSMessage) {

	var payload struct {
		UserId   int64  `json:"user_id"`
		GameId   string `json:"game_id"`
		Username string `json:"username"`
		Observer bool   `json:"observer"`
	}

	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid join-room payload %s", err)
		return
	}

	if payload.UserId == 0 || payload.GameId == "" {
		log.Error("Invalid join-room payload: missing user or game id")
		return
	}

	s.gameMap.Store(socketId, payload.GameId)
	s.userMap.Store(socketId, payload.UserId)

	// the game service handles membership; the room registration above is
	// what routes broadcasts back to this socket
	join := &comm.WSMessage{Type: "join-game", Data: msg.Data, SocketId: socketId}
	bytes, err := json.Marshal(join)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := "game.service"
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		return
	}

	log.Infof("Socket %s joined room %s for user %d", socketId, payload.GameId, payload.UserId)
}

// handleChat relays a chat line to every socket of the sender's room
// without touching the game service.
func (s *Ws) handleChat(socketId string, msg *comm.WSMessage) {
	var payload comm.ChatData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid chat payload %s", err)
		return
	}

	gameId, ok := s.GetGame(socketId)
	if !ok {
		log.Warnf("chat from socket %s with no room", socketId)
		return
	}
	payload.GameID = gameId

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to marshal chat payload: %v", err)
		return
	}
	out := &comm.WSMessage{Type: "chat", Data: data}

	sockets, _ := s.GetGameSockets(gameId)
	for _, sid := range sockets {
		if conn, ok := s.GetConnection(sid); ok {
			if err := conn.WriteJSON(out); err != nil {
				log.Errorf("Failed to send chat to socket %s: %v", sid, err)
			}
		}
	}
}

// forwardToGameService relays a player action to the game service with
// the socket id attached for targeted replies.
func (s *Ws) forwardToGameService(socketId string, msg *comm.WSMessage) {
	msg.SocketId = socketId

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := "game.service"
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		return
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

func (s *Ws) GetGame(socketId string) (string, bool) {
	game, ok := s.gameMap.Load(socketId)
	if !ok {
		return "", false
	}
	return game.(string), true
}

func (s *Ws) GetGameSockets(gameId string) ([]string, bool) {
	var sockets []string
	found := false

	s.gameMap.Range(func(key, value interface{}) bool {
		if value.(string) == gameId {
			sockets = append(sockets, key.(string))
			found = true
		}
		return true // continue iterating
	})

	return sockets, found
}

func (s *Ws) GetUserSockets(userId int64) ([]string, bool) {
	var sockets []string
	found := false

	s.userMap.Range(func(key, value interface{}) bool {
		if value.(int64) == userId {
			sockets = append(sockets, key.(string))
			found = true
		}
		return true // continue iterating
	})

	return sockets, found
}

// HandleDisconnect drops all state of a closed socket. The game service
// pauses the game on its own once the player leaves.
func (s *Ws) HandleDisconnect(socketId string) {
	userId, hasUser := s.userMap.Load(socketId)
	gameId, hasGame := s.gameMap.Load(socketId)

	s.connMap.Delete(socketId)
	s.gameMap.Delete(socketId)
	s.userMap.Delete(socketId)

	if !hasUser || !hasGame {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"user_id": userId.(int64),
		"game_id": gameId.(string),
	})
	if err != nil {
		log.Errorf("Failed to marshal leave payload: %v", err)
		return
	}

	leave := &comm.WSMessage{Type: "leave-game", Data: payload, SocketId: socketId}
	bytes, err := json.Marshal(leave)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := "game.service"
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
	}
}
