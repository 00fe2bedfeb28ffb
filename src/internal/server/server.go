package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-store-svc/src/clients"
	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg *config.Configuration
}

func New(cfg *config.Configuration) *Server {
	return &Server{cfg: cfg}
}

// Start connects the backing services, serves the HTTP API and runs the
// garbage collector until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := Connect(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	SetupRoutes(deps)

	go deps.Collector.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      deps.Router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on port %s", s.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Infof("Application %s stopped cleanly", s.cfg.App.Name)
	return nil
}

// Connect opens every backing service the configuration enables and wires
// the dependency manager. The returned cleanup closes what was opened.
func Connect(ctx context.Context, cfg *config.Configuration) (*dependency.Manager, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var mongodb *clients.MongoDB
	if cfg.Session.Driver == config.DriverMongoDB {
		conn := cfg.Database.Connections[cfg.Session.Connection]
		db, err := clients.NewMongoDB(&conn, cfg.Database.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		mongodb = db
		closers = append(closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := db.Close(closeCtx); err != nil {
				log.WithError(err).Error("Failed to close MongoDB connection")
			}
		})
	}

	var redisClient *clients.RedisClient
	if cfg.Cache.Enabled {
		rc, err := clients.NewRedisClient(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		redisClient = rc
		closers = append(closers, func() {
			if err := rc.Close(); err != nil {
				log.WithError(err).Error("Failed to close Redis connection")
			}
		})
	}

	var rabbitMQ *clients.RabbitMQ
	if cfg.Queue.RabbitMQ.Enabled {
		mq, err := clients.NewRabbitMQ(&cfg.Queue.RabbitMQ)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		closers = append(closers, func() {
			if err := mq.Close(); err != nil {
				log.WithError(err).Error("Failed to close RabbitMQ connection")
			}
		})
		if err := mq.SetupExchange(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
		rabbitMQ = mq
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	deps := dependency.NewDependencyManager(router, mongodb, redisClient, rabbitMQ, cfg)

	if err := deps.SessionRepo.EnsureIndexes(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create session indexes: %w", err)
	}

	return deps, cleanup, nil
}
