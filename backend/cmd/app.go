package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/walkie-talkie/backend/longpoll"
	httpServer "github.com/adwski/walkie-talkie/backend/server/http"
	websocketServer "github.com/adwski/walkie-talkie/backend/server/websocket"
	"github.com/adwski/walkie-talkie/backend/service"
	store "github.com/adwski/walkie-talkie/backend/storage/memory"
	sw "github.com/adwski/walkie-talkie/backend/switch"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	adminToken, err := generateAdminToken()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to generate admin token")
	}

	events := sw.NewSwitch(&logger)
	svc := service.NewService(service.Config{
		Registry:  store.NewMemStore(),
		Mailboxes: store.NewMailboxes(),
		Dispatcher: longpoll.NewDispatcher(longpoll.Config{
			Logger:  &logger,
			Timeout: cfg.PollTimeout,
		}),
		Broadcaster: events,
		Logger:      &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		HubService: svc,
		Events:     events,
		ListenAddr: cfg.ListenAddr(),
		JoinToken:  cfg.JoinToken,
		AdminToken: adminToken,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(1)
	go httpSrv.Run(ctx, wg, errc)

	if cfg.WSListenAddr != "" {
		wsSrv := websocketServer.NewServer(websocketServer.Config{
			Logger:     &logger,
			Events:     events,
			ListenAddr: cfg.WSListenAddr,
		})
		wg.Add(1)
		go wsSrv.Run(ctx, wg, errc)
	}

	logger.Info().
		Str("dashboard", "http://"+cfg.ListenAddr()+"/").
		Msg("walkie-talkie hub is on the air")

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
