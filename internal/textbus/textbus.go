// Package textbus implements the live drawtext message bus referenced by
// spec.md §4.3 step 10 ("drawtext, either from filename regex or from a
// live text-message bus") and wired through PlayoutConfig's `text`
// section. Operators push a new overlay string over TCP as a JWT, the
// same HMAC-signed-claims shape the teacher uses for webhook auth
// (github.com/ausocean/utils/svc/gauth's PutClaims/GetClaims,
// cmd/oceantv/hooks.go), so a misconfigured or unauthorized pusher can't
// graffiti the live output.
package textbus

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ausocean/utils/logging"
)

// claimKey is the JWT claim carrying the overlay text.
const claimKey = "text"

// maxLineLen bounds one pushed token, guarding against a misbehaving or
// hostile pusher from holding the connection open indefinitely.
const maxLineLen = 8192

// Bus holds the current drawtext payload for one channel and accepts
// authenticated pushes over a TCP listener.
type Bus struct {
	Channel string
	Addr    string // host:port; ":0" auto-allocates
	Key     []byte // HMAC secret shared with authorized pushers
	Log     logging.Logger

	mu      sync.RWMutex
	current string

	ln net.Listener
}

// NewBus returns a Bus ready to Serve.
func NewBus(channel, addr string, key []byte, log logging.Logger) *Bus {
	return &Bus{Channel: channel, Addr: addr, Key: key, Log: log}
}

// Current returns the most recently accepted overlay text, or "" if none
// has been pushed yet. Bound to schedule.Iterator.TextProvider.
func (b *Bus) Current() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// ListenAddr returns the listener's actual address, valid only after Serve has
// started listening (useful when Addr was ":0").
func (b *Bus) ListenAddr() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ln == nil {
		return ""
	}
	return b.ln.Addr().String()
}

// Serve listens and accepts pushes until ctx-like stop is requested via
// Close. Each accepted connection is read line-by-line; each line is
// expected to be a signed JWT whose claimKey claim becomes the new
// current text. A connection is closed after its first line, matching a
// simple fire-and-forget push model rather than a persistent session.
func (b *Bus) Serve() error {
	ln, err := net.Listen("tcp", b.Addr)
	if err != nil {
		return fmt.Errorf("textbus: listen %s: %w", b.Addr, err)
	}
	b.mu.Lock()
	b.ln = ln
	b.mu.Unlock()

	if b.Log != nil {
		b.Log.Info("textbus listening", "channel", b.Channel, "addr", ln.Addr().String())
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil // listener closed by Close
		}
		go b.handle(conn)
	}
}

// Close stops accepting new pushes.
func (b *Bus) Close() error {
	b.mu.RLock()
	ln := b.ln
	b.mu.RUnlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (b *Bus) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(timeNow().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024), maxLineLen)
	if !scanner.Scan() {
		return
	}
	line := strings.TrimSpace(scanner.Text())

	text, err := b.verify(line)
	if err != nil {
		if b.Log != nil {
			b.Log.Warning("textbus rejected push", "channel", b.Channel, "remote", conn.RemoteAddr().String(), "error", err.Error())
		}
		return
	}

	b.mu.Lock()
	b.current = text
	b.mu.Unlock()
}

// verify parses and validates a pushed JWT, mirroring
// gauth.GetClaims's HMAC-only verification.
func (b *Bus) verify(tokString string) (string, error) {
	tokString = strings.TrimPrefix(tokString, "Bearer ")
	if tokString == "" {
		return "", fmt.Errorf("textbus: empty token")
	}
	if len(b.Key) == 0 {
		return "", fmt.Errorf("textbus: no verification key configured")
	}

	tok, err := jwt.Parse(tokString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return b.Key, nil
	})
	if err != nil {
		return "", fmt.Errorf("textbus: parse token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !tok.Valid || !ok {
		return "", fmt.Errorf("textbus: invalid token")
	}
	text, ok := claims[claimKey].(string)
	if !ok {
		return "", fmt.Errorf("textbus: missing %q claim", claimKey)
	}
	return text, nil
}

// Push signs text as a JWT with key and returns the line to write to a
// Bus connection. Used by operator-side tooling and tests; the playout
// engine itself never calls this.
func Push(text string, key []byte) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{claimKey: text})
	return tok.SignedString(key)
}

var timeNow = time.Now
