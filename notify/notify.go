// Package notify sends operator email alerts on sync loss and
// unrecoverable playout errors (spec.md §4.5's "operator alerted via
// log+mail", §4.7's unrecoverable decoder/encoder failure). Adapted
// from the teacher's notify package: a mailjet-backed Notifier that
// throttles repeat alerts of the same Kind through a TimeStore.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mailjet "github.com/mailjet/mailjet-apiv3-go"

	"github.com/ffplayout/ffplayout-sub001/internal/secrets"
)

// Kind tags an alert so repeat sends of the same condition for the
// same channel can be throttled independently of other kinds.
type Kind string

const (
	SyncLoss           Kind = "sync_loss"
	UnrecoverableError Kind = "unrecoverable_error"
	IngestFailure      Kind = "ingest_failure"
	PlaylistMissing    Kind = "playlist_missing"
)

// TimeStore records when a channel/kind alert was last sent, so
// Notifier can throttle repeats. internal/statestore's Store does not
// implement this directly; callers typically pass a small adapter or
// the in-memory MemStore below.
type TimeStore interface {
	Get(channel string, kind Kind) (time.Time, error)
	Set(channel string, kind Kind, t time.Time) error
}

// MemStore is a process-local TimeStore, sufficient for a single
// playoutd instance where persistence across restarts isn't required.
type MemStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemStore() *MemStore { return &MemStore{last: make(map[string]time.Time)} }

func (m *MemStore) Get(channel string, kind Kind) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[channel+"."+string(kind)], nil
}

func (m *MemStore) Set(channel string, kind Kind, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[channel+"."+string(kind)] = t
	return nil
}

// Notifier sends throttled email alerts for one deployment.
type Notifier struct {
	mu          sync.Mutex
	initialized bool
	sender      string
	recipient   string
	store       TimeStore
	publicKey   string
	privateKey  string
}

// Init resolves the mailjet API keys from the channel's secret store
// (keys "mailjetPublicKey"/"mailjetPrivateKey") and sets the sender
// and recipient addresses used by Send. A nil store disables
// throttling (every alert is sent). An empty channel skips secret
// resolution entirely, matching the teacher's test-mode convention.
func (n *Notifier) Init(ctx context.Context, channel, sender, recipient string, store TimeStore) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.initialized {
		return nil
	}
	n.sender = sender
	n.recipient = recipient
	n.store = store

	if channel == "" {
		n.initialized = true
		return nil
	}

	m, err := secrets.Lookup(ctx, channel, []string{"mailjetPublicKey", "mailjetPrivateKey"})
	if err != nil {
		return fmt.Errorf("notify: resolve mail secrets: %w", err)
	}
	n.publicKey = m["mailjetPublicKey"]
	n.privateKey = m["mailjetPrivateKey"]
	n.initialized = true
	return nil
}

// Send emails msg tagged as kind for channel, unless an alert of the
// same kind was sent for this channel within minPeriod. With an empty
// sender no mail goes out, but the send time is still recorded.
func (n *Notifier) Send(ctx context.Context, channel string, kind Kind, msg string, minPeriod time.Duration) error {
	if n.recipient == "" {
		return errors.New("notify: no recipient configured")
	}

	if n.store != nil {
		t, err := n.store.Get(channel, kind)
		if err == nil && time.Since(t) < minPeriod {
			return nil // throttled
		}
	}

	if n.sender != "" {
		clt := mailjet.NewMailjetClient(n.publicKey, n.privateKey)
		info := []mailjet.InfoMessagesV31{{
			From:     &mailjet.RecipientV31{Email: n.sender},
			To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: n.recipient}},
			Subject:  fmt.Sprintf("[%s] %s", channel, strings.ReplaceAll(string(kind), "_", " ")),
			TextPart: msg,
		}}
		if _, err := clt.SendMailV31(&mailjet.MessagesV31{Info: info}); err != nil {
			return fmt.Errorf("notify: send mail: %w", err)
		}
	}

	if n.store != nil {
		if err := n.store.Set(channel, kind, time.Now()); err != nil {
			return fmt.Errorf("notify: record send time: %w", err)
		}
	}
	return nil
}
