package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PulseChat/global/config"
	"PulseChat/logger"
	"PulseChat/module/chat/api"
	"PulseChat/module/chat/state"
	"PulseChat/service/gateway"
	"PulseChat/service/kafka"
	"PulseChat/service/mgo"
	"PulseChat/service/natsx"
	"PulseChat/service/pg"
	"PulseChat/service/session"
	"PulseChat/service/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	config.ConfigAll()
	cfg := config.Global
	ctx := context.Background()

	remote, closeRemote, err := buildRemote(ctx, cfg)
	if err != nil {
		logger.Error("remote gateway init failed", zap.Error(err))
		os.Exit(1)
	}
	defer closeRemote()

	feed, closeFeed, err := buildFeed(cfg)
	if err != nil {
		logger.Error("change feed init failed", zap.Error(err))
		os.Exit(1)
	}
	defer closeFeed()

	presence, err := storage.New(storage.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Error("presence init failed", zap.Error(err))
		os.Exit(1)
	}

	sessions := session.NewProvider(session.DefaultOptions(config.GetJwtSecret()))

	engine := state.NewEngine(remote, feed, presence, sessions)
	defer engine.Close()

	// the engine bootstraps lazily: the first verified token installs the
	// session and starts the loads
	var startOnce sync.Once
	sessions.OnChange(func(s *gateway.Session) {
		if s == nil {
			return
		}
		startOnce.Do(func() {
			if err := engine.Start(ctx); err != nil {
				logger.Error("engine start failed", zap.Error(err))
			}
		})
	})

	r := gin.Default()
	api.NewServer(engine, sessions).Register(r)

	go func() {
		logger.Infof("listening on %s", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
}

func buildRemote(ctx context.Context, cfg config.AppConfig) (gateway.Remote, func(), error) {
	switch cfg.GatewayKind {
	case config.GatewayMongo:
		g, err := mgo.New(ctx, mgo.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close(context.Background()) }, nil
	default:
		g, err := pg.New(ctx, pg.Config{URL: cfg.PostgresURL})
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}
}

func buildFeed(cfg config.AppConfig) (gateway.ChangeFeed, func(), error) {
	switch cfg.FeedKind {
	case config.FeedKafka:
		f, err := kafka.New(kafka.Config{Brokers: cfg.KafkaBrokers, GroupID: cfg.KafkaGroupID})
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		f, err := natsx.New(natsx.Config{Servers: cfg.NatsServers, Name: "pulsechat"})
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	}
}
