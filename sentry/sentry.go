package sentry

import (
	"time"

	sentry "github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"djmaow/config"
)

// Init configures the global hub. An empty DSN leaves reporting disabled but
// keeps the SDK usable so spans and captures are no-ops.
func Init(cfg config.SentryConfig) error {
	if cfg.DSN == "" {
		log.WithFields(log.Fields{"module": "sentry"}).Info("SENTRY_DSN not set, error reporting disabled")
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Release:          cfg.Release,
		TracesSampleRate: 1.0,
	})
}

func Gin() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

func Flush() {
	sentry.Flush(2 * time.Second)
}
