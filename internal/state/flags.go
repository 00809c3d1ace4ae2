// Package state implements the playout mode state machine and its atomic
// cross-task flags (spec.md §4.12, §5 "Shared-resource policy"). Flags are
// the only multi-writer state a channel's task tree touches concurrently;
// everything else (current_media, current_list, current_date) is written
// solely by the player loop per §5.
package state

import "sync/atomic"

// Flags holds the three atomic booleans spec §5 singles out as the only
// multi-writer state in a channel's task tree.
type Flags struct {
	// IsAlive is the single cancellation signal for the whole channel;
	// every loop (player, ingest, stderr readers) polls it.
	IsAlive atomic.Bool

	// IngestIsAlive flips true as soon as the live ingest child has
	// produced any stderr output (first-byte proxy for "feed arrived"),
	// and false again when that child exits (spec §4.6 step 4).
	IngestIsAlive atomic.Bool

	// ListInit records that a list_init resync was requested: the state
	// machine raises it on channel start and on entering a live override
	// (spec §4.5 step 2, §4.7 step 10). schedule.Iterator does not read
	// it; the iterator keeps its own list_init, set at construction and
	// through RequestResync.
	ListInit atomic.Bool
}

// NewFlags returns Flags in their startup state: alive, awaiting the
// initial list_init resync, ingest not yet live.
func NewFlags() *Flags {
	f := &Flags{}
	f.IsAlive.Store(true)
	f.ListInit.Store(true)
	return f
}
