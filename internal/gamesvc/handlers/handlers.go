package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	games     notify.GameReader
	players   notify.PlayerLister
}

func NewHandler(games notify.GameReader, players notify.PlayerLister) *Handler {
	return &Handler{games: games, players: players}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "game service is running at port " + os.Getenv("GAME_SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode health response: %v", err)
	}
}

// GameStateHandler serves the same snapshot the socket push carries, for
// clients that poll or reconnect.
func (h *Handler) GameStateHandler(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	state, err := notify.BuildGameState(r.Context(), h.games, h.players, gameID, time.Now())
	if err != nil {
		log.Errorf("Failed to build game state for %s: %v", gameID, err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "internal error"})
		return
	}
	if state == nil {
		h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "game not found"})
		return
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: state})
}
