package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"mail-chain-analyzer/internal/metrics"
)

// ErrSessionEnded is returned when the server closes an otherwise healthy session
var ErrSessionEnded = errors.New("mailbox session ended")

const (
	defaultQueueSize   = 16
	updatesChannelSize = 64
)

// Trigger asks for one search cycle
type Trigger struct {
	Kind TriggerKind
	At   time.Time
}

// TriggerHandler runs a search cycle against the live session. It is never
// called concurrently for the same manager.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, s *Session, t Trigger)
}

// Options configures a Manager
type Options struct {
	Mailbox        string
	ReconnectDelay time.Duration
	QueueSize      int
}

// Manager keeps exactly one session to the configured mailbox alive,
// reconnecting after a fixed delay whenever the session ends.
type Manager struct {
	dialer  Dialer
	handler TriggerHandler
	opts    Options
	metrics *metrics.Metrics

	mu    sync.RWMutex
	state State
}

// NewManager creates a manager in the disconnected state
func NewManager(dialer Dialer, handler TriggerHandler, opts Options, m *metrics.Metrics) *Manager {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	return &Manager{
		dialer:  dialer,
		handler: handler,
		opts:    opts,
		metrics: m,
		state:   StateDisconnected,
	}
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.MailboxState.Set(float64(s))
	}
	logrus.WithFields(logrus.Fields{
		"old":     old.String(),
		"new":     s.String(),
		"mailbox": m.opts.Mailbox,
	}).Info("Mailbox state changed")
}

// Run connects and serves sessions until ctx is cancelled. Every session end,
// clean or not, is followed by a reconnect after the configured delay.
func (m *Manager) Run(ctx context.Context) error {
	for {
		m.setState(StateConnecting)
		err := m.runSession(ctx)

		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return nil
		}

		m.setState(StateEnded)
		if err != nil {
			logrus.WithError(err).Error("Mailbox session failed")
		}
		logrus.Infof("Reconnecting to mailbox in %s", m.opts.ReconnectDelay)

		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return nil
		case <-time.After(m.opts.ReconnectDelay):
		}

		if m.metrics != nil {
			m.metrics.Reconnects.Inc()
		}
	}
}

func (m *Manager) runSession(ctx context.Context) error {
	updates := make(chan client.Update, updatesChannelSize)
	c, err := m.dialer.Dial(ctx, updates)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Logout(); err != nil {
			logrus.WithError(err).Debug("Logout after session end failed")
		}
	}()

	triggers := make(chan Trigger, m.opts.QueueSize)

	// The client blocks on a full updates channel, so drain it for as long
	// as the connection lives, not just while serving.
	go drainUpdates(updates, c.LoggedOut(), triggers)

	if _, err := c.Select(m.opts.Mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", m.opts.Mailbox, err)
	}

	m.setState(StateReady)
	offer(triggers, Trigger{Kind: TriggerReady, At: time.Now()})

	return m.serve(ctx, c, NewSession(c), triggers)
}

func (m *Manager) serve(ctx context.Context, c Client, session *Session, triggers <-chan Trigger) error {
	for {
		select {
		case t := <-triggers:
			m.handle(ctx, session, t)
			continue
		default:
		}

		if ctx.Err() != nil {
			return nil
		}

		stop := make(chan struct{})
		idleDone := make(chan error, 1)
		go func() {
			idleDone <- c.Idle(stop, &client.IdleOptions{})
		}()

		select {
		case <-ctx.Done():
			close(stop)
			<-idleDone
			return nil
		case t := <-triggers:
			close(stop)
			if err := <-idleDone; err != nil {
				return fmt.Errorf("idle failed: %w", err)
			}
			m.handle(ctx, session, t)
		case err := <-idleDone:
			if err != nil {
				return fmt.Errorf("idle failed: %w", err)
			}
			return ErrSessionEnded
		}
	}
}

func (m *Manager) handle(ctx context.Context, session *Session, t Trigger) {
	logrus.WithField("trigger", t.Kind.String()).Debug("Handling mailbox trigger")
	m.handler.HandleTrigger(ctx, session, t)
}

// drainUpdates turns mailbox updates into new-mail triggers until the
// connection is gone.
func drainUpdates(updates <-chan client.Update, loggedOut <-chan struct{}, triggers chan<- Trigger) {
	for {
		select {
		case <-loggedOut:
			return
		case upd := <-updates:
			switch u := upd.(type) {
			case *client.MailboxUpdate:
				fields := logrus.Fields{}
				if u.Mailbox != nil {
					fields["mailbox"] = u.Mailbox.Name
					fields["messages"] = u.Mailbox.Messages
				}
				logrus.WithFields(fields).Debug("Mailbox update received")
				offer(triggers, Trigger{Kind: TriggerNewMail, At: time.Now()})
			case *client.StatusUpdate:
				if u.Status != nil {
					logrus.WithField("info", u.Status.Info).Debug("Status update received")
				}
			}
		}
	}
}

// offer queues t unless the queue is full. A queued trigger already causes a
// full search, so dropping the extra one loses nothing.
func offer(triggers chan<- Trigger, t Trigger) {
	select {
	case triggers <- t:
	default:
		logrus.WithField("trigger", t.Kind.String()).Debug("Trigger queue full, dropping trigger")
	}
}
