package media

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// jsonClip mirrors the authoritative playlist JSON shape from spec.md §6.
// Numeric fields accept both JSON numbers and numeric strings (some
// playlist generators emit them as strings); flexNumber absorbs that.
type jsonClip struct {
	Seek         flexNumber `json:"in"`
	Out          flexNumber `json:"out"`
	Duration     flexNumber `json:"duration"`
	Source       string     `json:"source"`
	Audio        string     `json:"audio,omitempty"`
	Category     string     `json:"category,omitempty"`
	CustomFilter string     `json:"custom_filter,omitempty"`
	Title        string     `json:"title,omitempty"`
}

type jsonPlaylist struct {
	Channel string     `json:"channel"`
	Date    string     `json:"date"`
	Program []jsonClip `json:"program"`
}

// flexNumber unmarshals from either a JSON number or a numeric string.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("flexNumber: %w", err)
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("flexNumber: could not parse %q: %w", s, err)
		}
		*f = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("flexNumber: %w", err)
	}
	*f = flexNumber(v)
	return nil
}

func (f flexNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

// ParsePlaylist decodes raw playlist JSON (spec §6) into a Playlist. It
// does not assign Index/Begin; callers (the playlist store) do that, since
// Begin depends on the channel's configured day start.
func ParsePlaylist(data []byte) (*Playlist, error) {
	var jp jsonPlaylist
	if err := json.Unmarshal(data, &jp); err != nil {
		return nil, fmt.Errorf("could not parse playlist JSON: %w", err)
	}
	pl := &Playlist{Channel: jp.Channel, Date: jp.Date}
	pl.Program = make([]Clip, len(jp.Program))
	for i, jc := range jp.Program {
		pl.Program[i] = Clip{
			Seek:         float64(jc.Seek),
			Out:          float64(jc.Out),
			Duration:     float64(jc.Duration),
			Source:       jc.Source,
			Audio:        jc.Audio,
			Category:     jc.Category,
			CustomFilter: jc.CustomFilter,
			Title:        jc.Title,
		}
	}
	return pl, nil
}

// MarshalPlaylist encodes a Playlist back to the spec §6 JSON shape. Round
// tripping through ParsePlaylist(MarshalPlaylist(p)) must produce a
// playlist Equal to p (spec §8 round-trip law).
func MarshalPlaylist(pl *Playlist) ([]byte, error) {
	jp := jsonPlaylist{Channel: pl.Channel, Date: pl.Date}
	jp.Program = make([]jsonClip, len(pl.Program))
	for i := range pl.Program {
		c := &pl.Program[i]
		jp.Program[i] = jsonClip{
			Seek:         flexNumber(c.Seek),
			Out:          flexNumber(c.Out),
			Duration:     flexNumber(c.Duration),
			Source:       c.Source,
			Audio:        c.Audio,
			Category:     c.Category,
			CustomFilter: c.CustomFilter,
			Title:        c.Title,
		}
	}
	return json.Marshal(jp)
}
