// Package statestore persists the per-channel sync state — current date
// and accumulated time_shift — described in spec.md §6 ("State
// persistence") and §5 ("State-file writes ... are atomic: full content
// written to a temp path then renamed").
//
// It layers two things grounded on the teacher's model package
// (model/site.go's datastore.Entity/Store pattern):
//   - a datastore.Entity (State) stored through the "file"-kind
//     ausocean/openfish/datastore store, giving channel state the same
//     create/get/query surface as every other entity in the pack;
//   - an explicit atomic JSON write (temp file + rename) for the exact
//     wire shape spec.md names, since that boundary is an external
//     interface the file-kind store's internal layout must not be allowed
//     to drift from.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"
)

const typeChannelState = "ChannelState"

// State is the persisted sync state for one channel.
type State struct {
	Channel   string  `json:"-"`
	Date      string  `json:"date"`
	TimeShift float64 `json:"time_shift"`
}

// Encode implements datastore.Entity.
func (s *State) Encode() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Decode implements datastore.Entity.
func (s *State) Decode(b []byte) error {
	return json.Unmarshal(b, s)
}

// Copy implements datastore.Entity.
func (s *State) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var out *State
	if dst == nil {
		out = new(State)
	} else {
		var ok bool
		out, ok = dst.(*State)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*out = *s
	return out, nil
}

var stateCache datastore.Cache = datastore.NewEntityCache()

// GetCache implements datastore.Entity.
func (s *State) GetCache() datastore.Cache { return stateCache }

// Store manages channel state persistence: the datastore-backed entity
// store plus the literal atomic JSON file required by spec §5/§6.
type Store struct {
	ds      datastore.Store
	dir     string
	log     logging.Logger
}

// NewStore opens (creating if absent) a "file"-kind datastore rooted at
// dir, alongside dir itself for the literal per-channel state files.
func NewStore(ctx context.Context, appName, dir string, log logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create dir: %w", err)
	}
	ds, err := datastore.NewStore(ctx, "file", appName, dir)
	if err != nil {
		return nil, fmt.Errorf("statestore: open datastore: %w", err)
	}
	return &Store{ds: ds, dir: dir, log: log}, nil
}

// Load returns the persisted state for channel, or a zero-value State
// (date="", time_shift=0) if none exists yet.
func (s *Store) Load(ctx context.Context, channel string) (*State, error) {
	key := s.ds.IDKey(typeChannelState, hashKey(channel))
	var st State
	if err := s.ds.Get(ctx, key, &st); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return &State{Channel: channel}, nil
		}
		return nil, fmt.Errorf("statestore: load %s: %w", channel, err)
	}
	st.Channel = channel
	return &st, nil
}

// Save persists st for channel: atomically to the literal JSON file spec.md
// names, and through the datastore entity store for query/cache parity
// with the rest of the pack's model.
func (s *Store) Save(ctx context.Context, channel string, st *State) error {
	st.Channel = channel

	if err := s.writeAtomic(channel, st); err != nil {
		return err
	}

	key := s.ds.IDKey(typeChannelState, hashKey(channel))
	if _, err := s.ds.Put(ctx, key, st); err != nil {
		return fmt.Errorf("statestore: put %s: %w", channel, err)
	}
	if s.log != nil {
		s.log.Debug("channel state saved", "channel", channel, "date", st.Date, "time_shift", st.TimeShift)
	}
	return nil
}

// writeAtomic writes {"time_shift":...,"date":...} to <dir>/<channel>.json
// by writing to a sibling temp file and renaming over the target, so a
// concurrent reader never observes a partial write (spec §5).
func (s *Store) writeAtomic(channel string, st *State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("statestore: marshal %s: %w", channel, err)
	}

	target := filepath.Join(s.dir, channel+".json")
	tmp, err := os.CreateTemp(s.dir, "."+channel+".json.*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("statestore: rename into place: %w", err)
	}
	return nil
}

// hashKey derives a stable int64 datastore key from a channel name,
// since datastore.Store.IDKey takes an int64 id and channels are named
// by the caller rather than numbered.
func hashKey(channel string) int64 {
	var h int64 = 1469598103934665603 // FNV offset basis
	for _, b := range []byte(channel) {
		h ^= int64(b)
		h *= 1099511628211 // FNV prime
	}
	if h < 0 {
		h = -h
	}
	return h
}
