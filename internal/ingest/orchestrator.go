package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mail-chain-analyzer/internal/chain"
	"mail-chain-analyzer/internal/esp"
	"mail-chain-analyzer/internal/mailbox"
	"mail-chain-analyzer/internal/metrics"
	"mail-chain-analyzer/internal/models"
	"mail-chain-analyzer/internal/parser"
)

// NoSubject is stored when a message has no subject
const NoSubject = "(no subject)"

// Mailbox is the session capability a search cycle needs
type Mailbox interface {
	SearchUnseen(subject string) ([]uint32, error)
	FetchAndMarkSeen(uids []uint32) ([]mailbox.FetchedMessage, error)
}

// Store persists records
type Store interface {
	Create(ctx context.Context, email *models.Email) error
}

// Options configures an Orchestrator
type Options struct {
	// Subject restricts ingestion to unseen messages with this subject. Empty
	// means every unseen message.
	Subject string
	Workers int
}

// Orchestrator turns search triggers into stored records
type Orchestrator struct {
	store   Store
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an orchestrator
func New(store Store, opts Options, m *metrics.Metrics) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Orchestrator{
		store:   store,
		opts:    opts,
		metrics: m,
		now:     time.Now,
	}
}

// HandleTrigger implements mailbox.TriggerHandler
func (o *Orchestrator) HandleTrigger(ctx context.Context, s *mailbox.Session, t mailbox.Trigger) {
	o.RunCycle(ctx, s, t.Kind.String())
}

// RunCycle searches, fetches and stores qualifying messages. It returns the
// number of records stored. Failures are logged; a failed message never
// stops the others.
func (o *Orchestrator) RunCycle(ctx context.Context, mb Mailbox, reason string) int {
	log := logrus.WithFields(logrus.Fields{
		"cycle_id": uuid.NewString(),
		"trigger":  reason,
	})

	start := time.Now()
	defer func() {
		o.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	}()

	o.metrics.Searches.Inc()
	uids, err := mb.SearchUnseen(o.opts.Subject)
	if err != nil {
		o.metrics.MessageFailures.WithLabelValues(metrics.StageSearch).Inc()
		log.WithError(err).Error("Mailbox search failed")
		return 0
	}
	if len(uids) == 0 {
		log.Debug("No new messages")
		return 0
	}
	log.WithField("count", len(uids)).Info("Found new messages")

	fetched, err := mb.FetchAndMarkSeen(uids)
	if err != nil {
		o.metrics.MessageFailures.WithLabelValues(metrics.StageFetch).Inc()
		log.WithError(err).WithField("fetched", len(fetched)).Error("Mailbox fetch failed")
	}
	o.metrics.MessagesFetched.Add(float64(len(fetched)))

	var stored int64
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for _, msg := range fetched {
		msg := msg
		g.Go(func() error {
			if o.process(ctx, log.WithField("uid", msg.UID), msg) {
				atomic.AddInt64(&stored, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.WithFields(logrus.Fields{
		"found":    len(uids),
		"fetched":  len(fetched),
		"stored":   stored,
		"duration": time.Since(start).String(),
	}).Info("Search cycle completed")
	return int(stored)
}

func (o *Orchestrator) process(ctx context.Context, log *logrus.Entry, msg mailbox.FetchedMessage) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.metrics.MessageFailures.WithLabelValues(metrics.StageParse).Inc()
			log.WithField("panic", r).Error("Message processing panicked")
			ok = false
		}
	}()

	email, err := Build(msg, o.now())
	if err != nil {
		o.metrics.MessageFailures.WithLabelValues(metrics.StageParse).Inc()
		log.WithError(err).Error("Failed to parse message")
		return false
	}

	if err := o.store.Create(ctx, email); err != nil {
		o.metrics.MessageFailures.WithLabelValues(metrics.StagePersist).Inc()
		log.WithError(err).Error("Failed to store message")
		return false
	}

	o.metrics.Ingested.Inc()
	o.metrics.ESPClassified.WithLabelValues(email.ESP).Inc()
	log.WithFields(logrus.Fields{
		"id":   email.ID,
		"esp":  email.ESP,
		"hops": len(email.ReceivingChain),
	}).Info("Message stored")
	return true
}

// Build parses a fetched message and assembles its record. now stands in for
// a missing Date header.
func Build(msg mailbox.FetchedMessage, now time.Time) (*models.Email, error) {
	parsed, err := parser.Parse(bytes.NewReader(msg.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %d: %w", msg.UID, err)
	}

	hops := chain.Normalize(parsed.HeaderLines)
	email := &models.Email{
		Subject:        validUTF8(parsed.Subject),
		From:           validUTF8(parsed.From),
		To:             validUTF8(parsed.To),
		Date:           parsed.Date,
		Text:           validUTF8(parsed.BodyText()),
		ReceivingChain: hops,
		ESP:            esp.Classify(parsed.FromAddress, hops, chain.RawText(parsed.HeaderLines)),
	}

	if email.Subject == "" {
		email.Subject = NoSubject
	}
	if email.Date.IsZero() {
		email.Date = now
	}
	if msg.UID != 0 {
		uid := msg.UID
		email.UID = &uid
	}
	return email, nil
}

// validUTF8 replaces invalid byte sequences, which text columns reject.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
