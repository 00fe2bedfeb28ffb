package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/logger"
	"session-store-svc/src/internal/server"

	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

func main() {
	cfg := config.Load()
	logger.Init(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps, cleanup, err := server.Connect(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect session storage")
	}
	defer cleanup()

	cutoff := cutoffFromEnv()
	if err := deps.SessionStore.GC(ctx, cutoff); err != nil {
		cleanup()
		log.WithError(err).Fatal("Failed to purge sessions")
	}
	log.WithField("cutoff", cutoff).Info("Session purge completed")
}

// cutoffFromEnv reads PURGE_CUTOFF as unix seconds. Zero means now.
func cutoffFromEnv() int64 {
	raw := strings.TrimSpace(os.Getenv("PURGE_CUTOFF"))
	if raw == "" {
		return 0
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cutoff < 0 {
		log.WithField("value", raw).Warn("Ignoring invalid PURGE_CUTOFF")
		return 0
	}
	return cutoff
}
