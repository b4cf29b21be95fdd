package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/bizmono/monopoly-services/configs"
	"github.com/bizmono/monopoly-services/internal/gamesvc/broker"
	svcconfig "github.com/bizmono/monopoly-services/internal/gamesvc/config"
	"github.com/bizmono/monopoly-services/internal/gamesvc/db"
	handlers "github.com/bizmono/monopoly-services/internal/gamesvc/handlers"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
	"github.com/bizmono/monopoly-services/internal/gamesvc/questions"
	"github.com/bizmono/monopoly-services/internal/gamesvc/service"
	"github.com/bizmono/monopoly-services/internal/gamesvc/store"
	nats "github.com/bizmono/monopoly-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	cfg := svcconfig.Load()

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	gameStore := store.NewGameStore(dbpool)
	playerStore := store.NewPlayerStore(dbpool)
	electionStore := store.NewElectionStore(dbpool)
	ledgerStore := store.NewLedgerStore(dbpool)
	questionStore := store.NewQuestionStore(dbpool)

	bank, err := questions.Load(cfg.QuestionsPath)
	if err != nil {
		log.Fatalf("Failed to load question bank: %v", err)
	}
	log.Printf("question bank loaded with %d questions", bank.Len())

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	notifier := notify.NewNatsNotifier(n.Conn, gameStore, playerStore)

	electionService := service.NewElectionService(electionStore, playerStore)
	gameService := service.NewGameService(gameStore, playerStore, electionService, notifier, service.Config{
		StartingMoney:        cfg.StartingMoney,
		StartingStateBalance: cfg.StartingStateBalance,
		StartingBankBalance:  cfg.StartingBankBalance,
	})
	ledgerService := service.NewLedgerService(ledgerStore, gameStore, playerStore, notifier)
	challengeService := service.NewChallengeService(questionStore, playerStore, bank, notifier)

	// init peer message broker
	broker := broker.NewBroker(n.Conn,
		gameService, ledgerService, challengeService, notifier, gameStore, playerStore)

	// subscribe to socket service
	topic := "game.service"
	sub, err := broker.QueueSubscribe(topic, SERVICE_NAME)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	// election scheduler
	tickCtx, tickCancel := context.WithCancel(context.Background())
	defer tickCancel()
	go func() {
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				gameService.Tick(tickCtx)
			}
		}
	}()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(gameStore, playerStore)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("GAME_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	sub.Unsubscribe()
	tickCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
