// Command client is a headless match peer. It reads commands from stdin:
//
//	move <entity> <x> <y>
//	attack <attacker> <target>
//	construction <entity>
//	skip | ping | world | quit
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/config"
	"github.com/neynn/army-attack-client-sub000/internal/logging"
	"github.com/neynn/army-attack-client-sub000/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	configFile := flag.String("config", "", "Path to YAML config file")
	url := flag.String("url", "", "Match WebSocket URL (overrides config)")
	name := flag.String("name", "player", "Display name")
	id := flag.String("id", "", "Peer id, empty lets the host pick one")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *url != "" {
		cfg.Server.URL = *url
	}

	logger, err := logging.SetupLogging(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventLog := logging.NewEventLog(logger, 1000)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := websocket.Dial(dialCtx, logger, websocket.ClientConfig{
		URL:      cfg.Server.URL,
		PeerID:   *id,
		Name:     *name,
		TickRate: cfg.Server.TickRate,
		Queue:    cfg.ActionQueue(),
		Actions:  cfg.ActionTimings(),
	}, eventLog.Observe)
	cancel()
	if err != nil {
		logger.Fatal("Failed to join match", zap.String("url", cfg.Server.URL), zap.Error(err))
	}
	defer c.Close()

	commands := make(chan []string)
	go readCommands(commands)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Server.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fields, ok := <-commands:
			if !ok || fields[0] == "quit" {
				return
			}
			run(c, logger, fields)
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				logger.Error("Disconnected", zap.Error(err))
				return
			}
		}
	}
}

func readCommands(out chan<- []string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
			out <- fields
		}
	}
}

// run executes one command on the tick goroutine
func run(c *websocket.Client, logger *zap.Logger, fields []string) {
	switch fields[0] {
	case "skip":
		fmt.Println("skip:", c.Skip())
	case "ping":
		if err := c.Ping(); err != nil {
			logger.Warn("Ping failed", zap.Error(err))
		}
	case "world":
		out, _ := json.MarshalIndent(c.World().Snapshot(), "", "  ")
		fmt.Println(string(out))
	default:
		typeID := action.TypeID(strings.ToUpper(fields[0]))
		requestID, err := c.Request(typeID, parseArgs(fields[1:])...)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("requested", typeID, requestID)
	}
}

func parseArgs(fields []string) []any {
	args := make([]any, len(fields))
	for i, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			args[i] = n
		} else {
			args[i] = f
		}
	}
	return args
}
