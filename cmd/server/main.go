package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"github.com/neynn/army-attack-client-sub000/internal/api"
	"github.com/neynn/army-attack-client-sub000/internal/config"
	"github.com/neynn/army-attack-client-sub000/internal/logging"
	"github.com/neynn/army-attack-client-sub000/internal/match"
	"github.com/neynn/army-attack-client-sub000/internal/registry"
	"github.com/neynn/army-attack-client-sub000/internal/scenario"
	"github.com/neynn/army-attack-client-sub000/internal/store"
	"github.com/neynn/army-attack-client-sub000/internal/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load .env file if it exists (ignore errors for local development)
	// In production, environment variables should be set directly
	_ = godotenv.Load()

	configFile := flag.String("config", "", "Path to YAML config file")
	scenarioFile := flag.String("scenario", "", "Path to scenario YAML file (overrides config)")
	port := flag.String("port", "", "Server port (overrides config)")
	replayID := flag.String("replay", "", "Replay a journaled match against the scenario, print the final world and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *scenarioFile != "" {
		cfg.Scenario.File = *scenarioFile
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger, err := logging.SetupLogging(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := store.NewJournal(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to initialize journal", zap.Error(err))
	}
	defer journal.Close()

	scenarioManager := scenario.NewScenarioManager(logger)
	if err := scenarioManager.LoadScenario(cfg.Scenario.File); err != nil {
		logger.Fatal("Failed to load scenario", zap.String("file", cfg.Scenario.File), zap.Error(err))
	}
	w, err := scenarioManager.NewWorld()
	if err != nil {
		logger.Fatal("Failed to build world", zap.Error(err))
	}

	if *replayID != "" {
		if err := replay(ctx, logger, journal, w, cfg, *replayID); err != nil {
			logger.Fatal("Replay failed", zap.String("mid", *replayID), zap.Error(err))
		}
		return
	}

	if err := serve(ctx, logger, cfg, journal, scenarioManager, w); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func serve(ctx context.Context, logger *zap.Logger, cfg config.Config, journal *store.Journal, scenarioManager *scenario.ScenarioManager, w *world.World) error {
	eventLog := logging.NewEventLog(logger, 10000) // Store up to 10000 log entries
	reg := registry.NewRegistry(logger)

	m := match.NewMatch(logger, w, reg, journal, match.Config{
		TickRate:       cfg.Server.TickRate,
		InputQueueSize: cfg.Server.InputQueueSize,
		Queue:          cfg.ActionQueue(),
		Actions:        cfg.ActionTimings(),
	}, eventLog.Observe)
	defer m.Stop()

	eventLog.LogAndStore(zapcore.InfoLevel, "Match %s started on %s", m.ID, scenarioManager.GetCurrentScenario().Name)
	eventLog.LogAndStore(zapcore.InfoLevel, "Server starting on port %s", cfg.Server.Port)
	eventLog.LogAndStore(zapcore.InfoLevel, "WebSocket endpoint: ws://localhost:%s/ws", cfg.Server.Port)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", api.HandleHealth())
	r.Get("/ws", websocket.HandleWebSocket(m, reg, eventLog))

	r.Route("/api", func(r chi.Router) {
		r.Get("/peers", api.HandleGetPeers(reg))
		r.Get("/logs", api.HandleGetLogs(eventLog))
		r.Delete("/logs", api.HandleClearLogs(eventLog))
		r.Get("/scenario", api.HandleGetScenario(scenarioManager))
		r.Get("/status", api.HandleGetStatus(m))
		r.Get("/world", api.HandleGetWorld(m))
		r.Post("/requests", api.HandlePostRequest(m, eventLog))
		r.Get("/matches", api.HandleGetMatches(journal))
		r.Get("/matches/{id}/actions", api.HandleGetMatchActions(journal))
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// replay rebuilds a finished match from its journal on the queue variant the
// match ran with. Follow-up actions such as counter attacks and deaths are
// derived again while the queue runs.
func replay(ctx context.Context, logger *zap.Logger, journal *store.Journal, w *world.World, cfg config.Config, matchID string) error {
	q := action.NewQueue[*world.World](logger, w, cfg.ActionQueue())
	actions.Register(q, cfg.ActionTimings())
	q.Activate()
	defer q.Exit()

	n, err := store.Replay(ctx, journal, matchID, q)
	if err != nil {
		return err
	}
	logger.Info("Replayed match", zap.String("mid", matchID), zap.Int("actions", n), zap.Int64("tick", w.CurrentTick()))

	out, err := json.MarshalIndent(w.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
