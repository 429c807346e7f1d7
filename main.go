package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flyknight/netplay/internal/client"
	"flyknight/netplay/internal/config"
	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/ops"
	"flyknight/netplay/internal/protocol"
	"flyknight/netplay/internal/replay"
	"flyknight/netplay/internal/server"
	"flyknight/netplay/internal/state"
)

func main() {
	var (
		hostMode bool
		joinAddr string
	)
	flag.BoolVar(&hostMode, "host", false, "host a game session")
	flag.StringVar(&joinAddr, "join", "", "join a hosted session at host:port")
	flag.Parse()

	if hostMode == (joinAddr != "") {
		fmt.Fprintln(os.Stderr, "exactly one of -host or -join must be given")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hostMode {
		runHost(cfg, logger)
		return
	}
	runJoin(cfg, logger, joinAddr)
}

func runHost(cfg *config.Config, logger *logging.Logger) {
	opts := []server.Option{server.WithLogger(logger)}

	var recorder *replay.Recorder
	if cfg.ReplayDir != "" {
		var err error
		recorder, err = replay.NewRecorder(cfg.ReplayDir, logger)
		if err != nil {
			logger.Fatal("failed to open replay bundle", logging.Error(err))
		}
		opts = append(opts, server.WithBroadcastSink(recorder))
	}

	var feed *ops.Feed
	if cfg.OpsAddress != "" {
		feed = ops.NewFeed(cfg.SpectatorRate, cfg.SpectatorBurst, logger)
		opts = append(opts, server.WithFrameObserver(feed.Publish))
	}

	host := server.New(cfg, opts...)
	if err := host.Start(); err != nil {
		logger.Fatal("failed to start host", logging.Error(err))
	}
	host.UpdateGameState(seedWorld())

	var opsServer *ops.Server
	if cfg.OpsAddress != "" {
		opsServer = ops.New(ops.Options{
			Address: cfg.OpsAddress,
			Logger:  logger,
			Stats:   host.Stats,
			Feed:    feed,
		})
		opsServer.Start()
	}

	waitForSignal()
	logger.Info("shutting down")

	_ = host.Close()
	if opsServer != nil {
		_ = opsServer.Close()
	}
	if recorder != nil {
		_ = recorder.Close()
	}
}

func runJoin(cfg *config.Config, logger *logging.Logger, addr string) {
	mirror, err := client.Dial(addr, client.Options{
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		MaxFrameBytes: cfg.MaxFrameBytes,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to join", logging.String("addr", addr), logging.Error(err))
	}
	defer mirror.Close()

	mirror.On(protocol.TypePlayerJoined, func(payload any) {
		if joined, ok := payload.(*protocol.PlayerJoinedPayload); ok {
			logger.Info("player joined", logging.Int("player_id", joined.PlayerID))
		}
	})
	mirror.On(protocol.TypePlayerLeft, func(payload any) {
		if left, ok := payload.(*protocol.PlayerLeftPayload); ok {
			logger.Info("player left", logging.Int("player_id", left.PlayerID))
		}
	})
	mirror.On(protocol.TypeEnemyDied, func(payload any) {
		if died, ok := payload.(*protocol.EnemyDiedPayload); ok {
			logger.Info("enemy died", logging.Int("enemy_id", died.EnemyID))
		}
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-mirror.Done():
			logger.Info("disconnected from host")
			return
		case <-signals:
			return
		case <-ticker.C:
			snapshot := mirror.Snapshot()
			logger.Info("world summary",
				logging.Int("players", len(snapshot.Players)),
				logging.Int("enemies", len(snapshot.Enemies)),
				logging.Int("items", len(snapshot.Items)),
				logging.Int("level", snapshot.Level))
		}
	}
}

// seedWorld stands in for the dungeon generator when hosting from the CLI:
// one starter room with a couple of enemies, enough to exercise the loop.
func seedWorld() state.Update {
	level := 1
	return state.Update{
		Enemies: map[int]protocol.EnemyView{
			0: {ID: 0, Type: "larva", X: 260, Y: 180, HP: 30, MaxHP: 30, State: "idle", SpawnPos: [2]float64{260, 180}},
			1: {ID: 1, Type: "ant", X: 420, Y: 320, HP: 60, MaxHP: 60, State: "idle", SpawnPos: [2]float64{420, 320}},
		},
		Items: map[int]protocol.ItemView{},
		Dungeon: &protocol.DungeonDescriptor{
			Level:     level,
			RoomCount: 1,
			Rooms: []protocol.RoomView{
				{RoomID: 0, X: 100, Y: 100, Width: 500, Height: 400, Center: [2]float64{350, 300}},
			},
			SpawnPos: [2]float64{150, 150},
		},
		Level: &level,
	}
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
