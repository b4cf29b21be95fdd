package broker

import (
	"encoding/json"

	"github.com/bizmono/monopoly-services/internal/comm"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Conn           *nats.Conn
	GetConnection  func(string) (*websocket.Conn, bool)
	GetGameSockets func(string) ([]string, bool)
	GetUserSockets func(int64) ([]string, bool)
}

func NewBroker(conn *nats.Conn, fncGetConnection func(string) (*websocket.Conn, bool),
	fncGetGameSockets func(string) ([]string, bool), fncGetUserSockets func(int64) ([]string, bool)) *Broker {
	return &Broker{
		Conn:           conn,
		GetConnection:  fncGetConnection,
		GetGameSockets: fncGetGameSockets,
		GetUserSockets: fncGetUserSockets,
	}
}

// consume message from game service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to game service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages receives game service pushes and fans them out to the
// web clients they address.
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(msgNats.Data, &message); err != nil {
		log.Errorf("Error %s", err)
		return
	}

	switch message.Type {
	case "game-state", "game-event":
		if message.SocketId != "" {
			b.sendMessage(message)
			return
		}
		b.broadcastToGame(message)
	case "personal":
		b.sendPersonal(message)
	default:
		log.Errorf("Unknown message %s", message.Type)
	}
}

// send socket message to the web client
func (b *Broker) sendMessage(m *comm.WSMessage) {
	socketId := m.SocketId
	if conn, ok := b.GetConnection(socketId); ok {
		if err := conn.WriteJSON(m); err != nil {
			log.Println(err)
		}
	}
}

// broadcastToGame delivers a room message to every socket registered for
// the game id carried in the payload.
func (b *Broker) broadcastToGame(m *comm.WSMessage) {
	var payload struct {
		GameID string `json:"game_id"`
	}
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		log.Errorf("Error decoding broadcast payload: %s", err)
		return
	}
	if payload.GameID == "" {
		log.Warnf("broadcast %s without game id", m.Type)
		return
	}

	sockets, ok := b.GetGameSockets(payload.GameID)
	if !ok {
		return
	}
	for _, socketId := range sockets {
		if conn, ok := b.GetConnection(socketId); ok {
			if err := conn.WriteJSON(m); err != nil {
				log.Println(err)
			}
		}
	}
}

// sendPersonal delivers a private message to every socket of one user.
func (b *Broker) sendPersonal(m *comm.WSMessage) {
	var payload comm.PersonalData
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		log.Errorf("Error decoding personal payload: %s", err)
		return
	}

	sockets, ok := b.GetUserSockets(payload.UserID)
	if !ok {
		return
	}
	for _, socketId := range sockets {
		if conn, ok := b.GetConnection(socketId); ok {
			if err := conn.WriteJSON(m); err != nil {
				log.Println(err)
			}
		}
	}
}
