package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/bizmono/monopoly-services/internal/comm"
)

// NATS topics the socket service fans out from.
const (
	TopicGame     = "socket.game"
	TopicPersonal = "socket.personal"
)

// NatsNotifier publishes broadcasts and personal messages for the socket
// service to deliver. Errors are logged and dropped: gameplay never blocks
// on delivery.
type NatsNotifier struct {
	conn    *nats.Conn
	games   GameReader
	players PlayerLister
	now     func() time.Time
}

func NewNatsNotifier(conn *nats.Conn, games GameReader, players PlayerLister) *NatsNotifier {
	return &NatsNotifier{
		conn:    conn,
		games:   games,
		players: players,
		now:     time.Now,
	}
}

func (n *NatsNotifier) BroadcastGameState(ctx context.Context, gameID string) {
	state, err := BuildGameState(ctx, n.games, n.players, gameID, n.now())
	if err != nil {
		log.Errorf("notify: build game state for %s: %v", gameID, err)
		return
	}
	if state == nil {
		log.Warnf("notify: game %s not found for broadcast", gameID)
		return
	}
	n.publish(TopicGame, "game-state", state, "")
}

func (n *NatsNotifier) NotifyEvent(ctx context.Context, gameID string, event string) {
	n.publish(TopicGame, "game-event", comm.GameEventData{GameID: gameID, Event: event}, "")
}

func (n *NatsNotifier) SendPersonal(ctx context.Context, userID int64, message string, level Level, extra map[string]any) {
	n.publish(TopicPersonal, "personal", comm.PersonalData{
		UserID:  userID,
		Message: message,
		Level:   string(level),
		Data:    extra,
	}, "")
}

func (n *NatsNotifier) BroadcastPersonalToGame(ctx context.Context, gameID string, message string, level Level, extra map[string]any, includeObservers, activeOnly bool) {
	list, err := n.players.ListPlayers(ctx, gameID)
	if err != nil {
		log.Errorf("notify: list players for %s: %v", gameID, err)
		return
	}
	for _, p := range list {
		if activeOnly && !p.IsActive {
			continue
		}
		if !includeObservers && p.IsObserver {
			continue
		}
		n.SendPersonal(ctx, p.UserID, message, level, extra)
	}
}

func (n *NatsNotifier) publish(topic, msgType string, payload any, socketId string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("notify: marshal %s payload: %v", msgType, err)
		return
	}

	msg := &comm.WSMessage{Type: msgType, Data: data, SocketId: socketId}
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("notify: marshal %s envelope: %v", msgType, err)
		return
	}

	if err := n.conn.Publish(topic, raw); err != nil {
		log.Errorf("notify: publish %s to %s: %v", msgType, topic, err)
	}
}
