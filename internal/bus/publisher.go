// Package bus publishes credential lifecycle events to NATS so other
// services can react to new or refreshed accounts. Publishing is optional:
// without a configured URL no publisher is created.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/credstore"
	"github.com/steveyegge/authcap/internal/supervisor"
	"github.com/steveyegge/authcap/internal/util"
)

// DefaultSubject is the subject credential events are published on.
const DefaultSubject = "coop.events.credential"

// Credential event types.
const (
	EventCreated       = "created"
	EventRefreshed     = "refreshed"
	EventRefreshFailed = "refresh_failed"
)

// CredentialEvent is the JSON payload published for each finished capture.
type CredentialEvent struct {
	EventType string `json:"event_type"`
	Account   string `json:"account"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"ts"`
	RunID     string `json:"run_id,omitempty"`
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher turns supervisor exit events into credential events.
type Publisher struct {
	conn    Conn
	subject string
	logger  func(format string, args ...interface{})
	now     func() time.Time
}

// Config configures the NATS connection.
type Config struct {
	URL     string
	Token   string
	Subject string
}

// Connect dials NATS and returns a publisher, retrying transient dial
// failures. Returns nil, nil when no URL is configured.
func Connect(ctx context.Context, cfg Config, logger func(format string, args ...interface{})) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts := []nats.Option{
		nats.Name("authcap-credential-publisher"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := util.Retry(ctx, util.DialBackoff(), func() (*nats.Conn, error) {
		nc, err := nats.Connect(cfg.URL, opts...)
		return nc, classifyDialError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return NewPublisher(nc, cfg.Subject, logger), nil
}

// classifyDialError marks credential rejections as permanent so Connect
// does not keep retrying a token the server will never accept.
func classifyDialError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrAuthorization),
		errors.Is(err, nats.ErrAuthExpired),
		errors.Is(err, nats.ErrAuthRevoked):
		return util.MarkPermanent(err)
	}
	return err
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, subject string, logger func(format string, args ...interface{})) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Publisher{conn: conn, subject: subject, logger: logger, now: time.Now}
}

// Observe is a supervisor.Observer. Only exit events are published.
func (p *Publisher) Observe(ev supervisor.Event) {
	if ev.Type != supervisor.EventExited {
		return
	}
	ce, ok := p.eventFor(ev.Status)
	if !ok {
		return
	}
	if err := p.Publish(ce); err != nil {
		p.logger("bus: %v", err)
	}
}

// Publish sends one credential event.
func (p *Publisher) Publish(ce CredentialEvent) error {
	data, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("encoding credential event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.subject, err)
	}
	p.logger("bus: published %s for %s", ce.EventType, ce.Account)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// eventFor derives the credential event from a finished run. A failed
// create has no account to report.
func (p *Publisher) eventFor(st supervisor.Status) (CredentialEvent, bool) {
	if st.LastAuthFile == nil {
		return CredentialEvent{}, false
	}
	ce := CredentialEvent{
		Account:   accountName(*st.LastAuthFile),
		Timestamp: p.now().UTC().Format(time.RFC3339),
		RunID:     st.RunID,
	}
	failed := st.ExitCode == nil || *st.ExitCode != 0
	if failed && st.Mode != capture.ModeRelogin {
		return CredentialEvent{}, false
	}
	switch {
	case failed:
		ce.EventType = EventRefreshFailed
		if st.Error != nil {
			ce.Error = *st.Error
		}
	case st.Mode == capture.ModeRelogin:
		ce.EventType = EventRefreshed
	default:
		ce.EventType = EventCreated
	}
	return ce, true
}

func accountName(file string) string {
	if index, ok := credstore.ParseFilename(file); ok {
		return fmt.Sprintf("auth-%d", index)
	}
	return file
}
