package media

import "time"

// Playlist is the in-memory representation of a broadcast day's program,
// spec.md §3 (JsonPlaylist). It is immutable once bound to an active day;
// a reload produces a fresh Playlist rather than mutating this one in
// place.
type Playlist struct {
	Channel  string
	Date     string // YYYY-MM-DD
	Program  []Clip
	Modified time.Time // mtime (local) or Last-Modified (HTTP)
	Path     string    // originating file path or URL, for reload checks
}

// Equal implements the equality relation from spec.md §6: playlists are
// equal iff channel, date, and the ordered program items match on
// title, seek, out, duration, source, category, audio, custom_filter.
func (p *Playlist) Equal(o *Playlist) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Channel != o.Channel || p.Date != o.Date {
		return false
	}
	if len(p.Program) != len(o.Program) {
		return false
	}
	for i := range p.Program {
		a, b := &p.Program[i], &o.Program[i]
		if a.Title != b.Title || a.Seek != b.Seek || a.Out != b.Out ||
			a.Duration != b.Duration || a.Source != b.Source ||
			a.Category != b.Category || a.Audio != b.Audio ||
			a.CustomFilter != b.CustomFilter {
			return false
		}
	}
	return true
}

// TotalLength returns the sum of (out-seek) across the program, i.e. the
// invariant checked against playlist.length_sec in spec §8 property 2.
func (p *Playlist) TotalLength() float64 {
	var total float64
	for i := range p.Program {
		total += p.Program[i].Length()
	}
	return total
}

// Dummy builds a single-clip placeholder playlist for the given date and
// start second, used when a playlist file is missing (spec §4.4, §7).
func Dummy(channel, date string, startSec, length float64, fillerPath string) *Playlist {
	return &Playlist{
		Channel: channel,
		Date:    date,
		Program: []Clip{{
			Index:    0,
			Seek:     0,
			Out:      length,
			Duration: length,
			Source:   fillerPath,
			Category: "filler",
			Begin:    startSec,
			Filler:   true,
		}},
	}
}
