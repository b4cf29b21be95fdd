package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/bizmono/monopoly-services/internal/comm"
	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
	"github.com/bizmono/monopoly-services/internal/gamesvc/service"
)

const actionTimeout = 30 * time.Second

// Broker consumes player actions from the socket service and dispatches
// them to the game services. Rejected actions go back to the actor as a
// personal message; internal errors are only logged.
type Broker struct {
	Conn             *nats.Conn
	GameService      *service.GameService
	LedgerService    *service.LedgerService
	ChallengeService *service.ChallengeService
	Notifier         notify.Notifier

	games   notify.GameReader
	players notify.PlayerLister
}

func NewBroker(nc *nats.Conn, gameService *service.GameService, ledgerService *service.LedgerService,
	challengeService *service.ChallengeService, notifier notify.Notifier,
	games notify.GameReader, players notify.PlayerLister) *Broker {
	return &Broker{
		Conn:             nc,
		GameService:      gameService,
		LedgerService:    ledgerService,
		ChallengeService: challengeService,
		Notifier:         notifier,
		games:            games,
		players:          players,
	}
}

// handleMessage handles one action coming from the socket service.
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, &msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch msg.Type {
	case "create-game":
		var request struct {
			UserId             int64   `json:"user_id"`
			Name               string  `json:"name"`
			EntrepreneurChance float64 `json:"entrepreneur_chance"`
			ElectionInterval   int     `json:"election_interval_seconds"`
			ElectionDuration   int     `json:"election_duration_seconds"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}

		settings := service.DefaultGameSettings()
		if request.EntrepreneurChance > 0 {
			settings.EntrepreneurChance = request.EntrepreneurChance
		}
		if request.ElectionInterval > 0 {
			settings.ElectionInterval = time.Duration(request.ElectionInterval) * time.Second
		}
		if request.ElectionDuration > 0 {
			settings.ElectionDuration = time.Duration(request.ElectionDuration) * time.Second
		}

		game, err := b.GameService.CreateGame(ctx, request.Name, request.UserId, settings)
		if err != nil {
			b.reportError(ctx, request.UserId, "create-game", err)
			return
		}
		b.Notifier.SendPersonal(ctx, request.UserId, "Game created.", notify.LevelSuccess,
			map[string]any{"game_id": game.ID})

	case "delete-game":
		var request struct {
			UserId int64  `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.DeleteGame(ctx, request.GameId, request.UserId); err != nil {
			b.reportError(ctx, request.UserId, "delete-game", err)
		}

	case "join-game":
		var request struct {
			UserId   int64  `json:"user_id"`
			GameId   string `json:"game_id"`
			Username string `json:"username"`
			Observer bool   `json:"observer"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if _, err := b.GameService.JoinGame(ctx, request.GameId, request.UserId, request.Username, request.Observer); err != nil {
			b.reportError(ctx, request.UserId, "join-game", err)
		}

	case "leave-game":
		var request struct {
			UserId int64  `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.LeaveGame(ctx, request.GameId, request.UserId); err != nil {
			b.reportError(ctx, request.UserId, "leave-game", err)
		}

	case "pause-game":
		var request struct {
			UserId int64  `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.Pause(ctx, request.GameId); err != nil {
			b.reportError(ctx, request.UserId, "pause-game", err)
		}

	case "resume-game":
		var request struct {
			UserId int64  `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.Resume(ctx, request.GameId); err != nil {
			b.reportError(ctx, request.UserId, "resume-game", err)
		}

	case "upgrade-role":
		var request struct {
			UserId int64  `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.UpgradeRole(ctx, request.GameId, request.UserId); err != nil {
			b.reportError(ctx, request.UserId, "upgrade-role", err)
		}

	case "transfer-money":
		var request struct {
			UserId   int64  `json:"user_id"`
			GameId   string `json:"game_id"`
			To       string `json:"to"` // "player", "state" or "bank"
			PlayerId int64  `json:"player_id"`
			Amount   int64  `json:"amount"`
			Source   string `json:"source"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}

		receiver := service.Receiver{Kind: models.AccountPersonal, PlayerID: request.PlayerId}
		switch request.To {
		case "state":
			receiver = service.Receiver{Kind: models.AccountState}
		case "bank":
			receiver = service.Receiver{Kind: models.AccountBank}
		}

		if err := b.LedgerService.Transfer(ctx, request.GameId, request.UserId, receiver, request.Amount, request.Source); err != nil {
			b.reportError(ctx, request.UserId, "transfer-money", err)
		}

	case "cast-vote":
		var request struct {
			UserId      int64  `json:"user_id"`
			GameId      string `json:"game_id"`
			CandidateId int64  `json:"candidate_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.CastVote(ctx, request.GameId, request.UserId, request.CandidateId); err != nil {
			b.reportError(ctx, request.UserId, "cast-vote", err)
		}

	case "choose-banker":
		var request struct {
			UserId   int64  `json:"user_id"`
			GameId   string `json:"game_id"`
			PlayerId int64  `json:"player_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.GameService.ChooseBanker(ctx, request.GameId, request.UserId, request.PlayerId); err != nil {
			b.reportError(ctx, request.UserId, "choose-banker", err)
		}

	case "ask-question":
		var request struct {
			UserId     int64  `json:"user_id"`
			GameId     string `json:"game_id"`
			PlayerId   int64  `json:"player_id"`
			QuestionId *int   `json:"question_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if _, err := b.ChallengeService.Ask(ctx, request.GameId, request.UserId, request.PlayerId, request.QuestionId); err != nil {
			b.reportError(ctx, request.UserId, "ask-question", err)
		}

	case "answer-question":
		var request struct {
			UserId     int64  `json:"user_id"`
			GameId     string `json:"game_id"`
			QuestionId int    `json:"question_id"`
			Token      string `json:"token"`
			Choice     *int   `json:"choice"`
			Text       string `json:"text"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		if err := b.ChallengeService.Answer(ctx, request.GameId, request.UserId, request.QuestionId, request.Token, request.Choice, request.Text); err != nil {
			b.reportError(ctx, request.UserId, "answer-question", err)
		}

	case "grade-answer":
		var request struct {
			UserId     int64  `json:"user_id"`
			GameId     string `json:"game_id"`
			Token      string `json:"token"`
			PlayerId   int64  `json:"player_id"`
			QuestionId int    `json:"question_id"`
			Approved   bool   `json:"approved"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		selector := service.PendingSelector{
			Token:      request.Token,
			PlayerID:   request.PlayerId,
			QuestionID: request.QuestionId,
		}
		if err := b.ChallengeService.GradePendingAnswer(ctx, request.GameId, request.UserId, selector, request.Approved); err != nil {
			b.reportError(ctx, request.UserId, "grade-answer", err)
		}

	case "get-game-state":
		var request struct {
			UserId int64  `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			return
		}
		state, err := notify.BuildGameState(ctx, b.games, b.players, request.GameId, time.Now())
		if err != nil {
			log.Errorf("Error building game state for %s: %s", request.GameId, err)
			return
		}
		if state == nil {
			b.reportError(ctx, request.UserId, "get-game-state", service.NotFoundf("game not found"))
			return
		}
		b.PublishGameState(state, msg.SocketId)

	default:
		log.Errorf("Unknown message %s", msg.Type)
	}
}

// reportError sends a rejected action back to the actor. Internal errors
// never reach players verbatim.
func (b *Broker) reportError(ctx context.Context, userID int64, action string, err error) {
	kind, ok := service.KindOf(err)
	if !ok {
		log.Errorf("Error [%s] %s", action, err)
		return
	}

	level := notify.LevelError
	if kind == service.KindValidation {
		level = notify.LevelWarning
	}
	b.Notifier.SendPersonal(ctx, userID, err.Error(), level, map[string]any{"action": action})
}

// PublishGameState answers a state request on the requesting socket only.
func (b *Broker) PublishGameState(state *comm.GameStateData, socketId string) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Errorf("Error marshalling game state %s", err)
		return
	}

	msg := &comm.WSMessage{
		Type:     "game-state",
		Data:     data,
		SocketId: socketId,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	b.Publish(notify.TopicGame, payload)
}

// consume actions from the socket service
func (b *Broker) QueueSubscribe(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
