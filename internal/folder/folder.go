// Package folder implements Folder Mode (spec.md §4.5 step 5, component
// C9): an alternative to the playlist store that walks a directory tree
// and iterates over its playable files directly, looping forever. Grounded
// on original_source/lib/src/utils/folder.rs's FolderSource: the same
// walk-then-shuffle-or-sort-then-iterate shape, reshuffling/resorting on
// wraparound rather than stopping.
package folder

import (
	"fmt"
	"io/fs"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/clockutil"
	"github.com/ffplayout/ffplayout-sub001/internal/config"
	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

// Source iterates a directory's playable files forever, in shuffled or
// sorted order per config.FolderOrder (REDESIGN FLAG (a) — made an
// explicit per-channel setting rather than a global).
type Source struct {
	order      config.FolderOrder
	extensions []string
	loc        *time.Location
	log        logging.Logger

	mu    sync.Mutex
	list  []media.Clip
	index int
}

// NewSource walks root and builds the initial ordered file list. An empty
// root yields a Source with zero entries, and a non-existent root makes
// NewSource return the walk error; Next on an empty Source returns an
// error rather than looping forever on nothing.
func NewSource(root string, order config.FolderOrder, extensions []string, loc *time.Location, log logging.Logger) (*Source, error) {
	s := &Source{order: order, extensions: extensions, loc: loc, log: log}

	list, err := walk(root, extensions)
	if err != nil {
		return nil, fmt.Errorf("folder: walk %s: %w", root, err)
	}
	if len(list) == 0 && log != nil {
		log.Error("no playable files found under folder root", "root", root)
	}

	s.order = order
	s.reorder(list)
	s.list = list
	return s, nil
}

// Next returns the next clip in the rotation, assigning Begin to the
// current wall-clock second-of-day and clearing the probe/filter state so
// the caller re-probes and re-builds the filter graph for it (spec §4.5).
// On wraparound the list is reshuffled or resorted before restarting.
func (s *Source) Next() (*media.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.list) == 0 {
		return nil, fmt.Errorf("folder: source is empty")
	}

	if s.index >= len(s.list) {
		if s.order == config.FolderShuffle {
			if s.log != nil {
				s.log.Info("folder mode: reshuffling file list")
			}
		} else if s.log != nil {
			s.log.Info("folder mode: resorting file list")
		}
		s.reorder(s.list)
		s.index = 0
	}

	c := s.list[s.index]
	c.Begin = clockutil.DaySeconds(s.loc)
	c.ProbeResult = nil
	c.Filter = ""
	c.FilterMaps = nil
	s.index++

	return &c, nil
}

// reorder shuffles or sorts list in place per s.order and reassigns Index.
func (s *Source) reorder(list []media.Clip) {
	if s.order == config.FolderShuffle {
		rand.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	} else {
		sort.Slice(list, func(i, j int) bool { return list[i].Source < list[j].Source })
	}
	for i := range list {
		list[i].Index = i
	}
}

// walk returns one Clip per playable file under root (by extension),
// unprobed and with no filter built yet — those are filled in by the
// caller after Next returns.
func walk(root string, extensions []string) ([]media.Clip, error) {
	var list []media.Clip
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !hasExtension(path, extensions) {
			return nil
		}
		list = append(list, media.Clip{Source: path, Unit: media.Decoder})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		want := strings.ToLower(e)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
