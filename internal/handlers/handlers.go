package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mail-chain-analyzer/internal/mailbox"
	"mail-chain-analyzer/internal/models"
	"mail-chain-analyzer/internal/repository"
)

// EmailReader is the read side of record storage
type EmailReader interface {
	Find(ctx context.Context, filter repository.Filter, skip, limit int) ([]models.Email, error)
	Count(ctx context.Context, filter repository.Filter) (int64, error)
	CountByESP(ctx context.Context, filter repository.Filter) ([]models.ESPCount, error)
	Ping(ctx context.Context) error
}

// RecordFinder loads a single record, possibly through a cache
type RecordFinder interface {
	FindByID(ctx context.Context, id uint) (*models.Email, error)
}

// MailboxState reports the mailbox connection state
type MailboxState interface {
	State() mailbox.State
}

// StatsScheduler is the stats refresher as seen by the API
type StatsScheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) error
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// Options holds the values the API reports back to operators
type Options struct {
	Subject     string
	TestAddress string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	emails    EmailReader
	finder    RecordFinder
	mailbox   MailboxState
	scheduler StatsScheduler
	health    healthcheck.Handler
	opts      Options
}

// NewHandlers creates new HTTP handlers. finder serves single-record reads
// and is either the repository or a cache in front of it.
func NewHandlers(emails EmailReader, finder RecordFinder, mb MailboxState, s StatsScheduler, opts Options) *Handlers {
	if strings.TrimSpace(opts.Subject) == "" {
		opts.Subject = ""
	}

	h := &Handlers{
		emails:    emails,
		finder:    finder,
		mailbox:   mb,
		scheduler: s,
		health:    healthcheck.NewHandler(),
		opts:      opts,
	}
	h.addHealthChecks()
	return h
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health checks
	router.GET("/healthz", h.HealthCheck)
	router.GET("/live", gin.WrapF(h.health.LiveEndpoint))
	router.GET("/ready", gin.WrapF(h.health.ReadyEndpoint))

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		// Ingested emails
		api.GET("/emails", h.ListEmails)
		api.GET("/emails/test-config", h.GetTestConfig)
		api.GET("/emails/stats", h.GetStats)
		api.GET("/emails/:id", h.GetEmail)

		// Stats refresher control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}
