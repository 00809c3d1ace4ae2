// Package playlist implements the playlist store (spec.md §4.4, component
// C4): loading a channel's daily program list from a local root, an
// HTTP(S) base, or a gs:// bucket, assigning begin/index to every entry,
// and falling back to a single-clip dummy playlist when the day's file is
// missing. GCS access is grounded on
// ausocean-cloud/cmd/oceantv/broadcast/storage.go's getObject/googleStorageAddr.
// Reload checks compare the source's modification time directly; this
// package keeps no datastore cache.
package playlist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/ausocean/utils/logging"

	"github.com/ffplayout/ffplayout-sub001/internal/media"
)

// DummyLength is the length, in seconds, of the single filler clip
// substituted when a day's playlist file is missing (spec §4.4).
const DummyLength = 60.0

// Loader loads and assigns per-clip scheduling metadata to a channel's
// daily playlist.
type Loader struct {
	Root       string // local root dir, http(s) base, or gs:// bucket base
	FillerPath string // filler clip path used for the dummy fallback

	Log logging.Logger

	// Validate, if set, is invoked in its own goroutine with every
	// successfully loaded (non-dummy) playlist. It must never block the
	// caller (spec §4.4: "never blocks the scheduler on it").
	Validate func(*media.Playlist)

	gcs *storage.Client
}

// NewLoader returns a Loader rooted at root.
func NewLoader(root, fillerPath string, log logging.Logger) *Loader {
	return &Loader{Root: root, FillerPath: fillerPath, Log: log}
}

// Load fetches and assigns the playlist for channel on date (YYYY-MM-DD),
// starting the running begin-time accumulator at startSec. On a missing
// file it returns a dummy playlist instead of an error.
func (l *Loader) Load(ctx context.Context, channel, date string, startSec float64) (*media.Playlist, error) {
	path, err := buildPath(l.Root, date)
	if err != nil {
		return nil, fmt.Errorf("playlist: %w", err)
	}

	raw, modified, found, err := l.fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("playlist: fetch %s: %w", path, err)
	}
	if !found {
		if l.Log != nil {
			l.Log.Warning("playlist file missing, substituting dummy", "channel", channel, "date", date, "path", path)
		}
		return media.Dummy(channel, date, startSec, DummyLength, l.FillerPath), nil
	}

	pl, err := media.ParsePlaylist(raw)
	if err != nil {
		return nil, fmt.Errorf("playlist: parse %s: %w", path, err)
	}
	pl.Path = path
	pl.Modified = modified
	assignSchedule(pl, startSec)

	if l.Validate != nil {
		go l.Validate(pl)
	}
	return pl, nil
}

// Modified returns the current modification timestamp for channel's date
// file — used by the scheduler's reload check (spec §4.5 step 1) to decide
// whether to reload. For an HTTP(S) root it is the Last-Modified header of
// a full GET, so the body is fetched too; no ETag is consulted.
func (l *Loader) Modified(ctx context.Context, date string) (time.Time, error) {
	path, err := buildPath(l.Root, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("playlist: %w", err)
	}
	return l.statModified(ctx, path)
}

// assignSchedule assigns index/begin and zeroes the runtime-only fields,
// exactly as spec §4.4 "for every program entry" describes.
func assignSchedule(pl *media.Playlist, startSec float64) {
	running := startSec
	for i := range pl.Program {
		c := &pl.Program[i]
		c.Index = i
		c.Begin = running
		c.LastAd = false
		c.NextAd = false
		c.Filter = ""
		running += c.Length()
	}
}

// buildPath implements the playlists_root/YYYY/MM/YYYY-MM-DD.json path
// policy (spec §4.4), for local paths, HTTP(S) bases, and gs:// bases
// alike.
func buildPath(root, date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	filename := date + ".json"
	yyyy := t.Format("2006")
	mm := t.Format("01")

	if strings.Contains(root, "://") {
		// filepath.Join would collapse "://" to ":/"; URLs and gs:// bases
		// are joined as plain strings instead.
		return strings.TrimRight(root, "/") + "/" + yyyy + "/" + mm + "/" + filename, nil
	}
	return filepath.Join(root, yyyy, mm, filename), nil
}

// fetch returns the raw bytes and modification timestamp for path,
// dispatching on its scheme. found is false (with a nil error) when the
// object/file legitimately does not exist.
func (l *Loader) fetch(ctx context.Context, path string) (raw []byte, modified time.Time, found bool, err error) {
	switch {
	case strings.HasPrefix(path, "gs://"):
		return l.fetchGCS(ctx, path)
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return l.fetchHTTP(ctx, path)
	default:
		return l.fetchLocal(path)
	}
}

func (l *Loader) fetchLocal(path string) ([]byte, time.Time, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return raw, info.ModTime(), true, nil
}

func (l *Loader) fetchHTTP(ctx context.Context, rawURL string) ([]byte, time.Time, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, time.Time{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	modified := time.Time{}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			modified = t
		}
	}
	return body, modified, true, nil
}

func (l *Loader) fetchGCS(ctx context.Context, uri string) ([]byte, time.Time, bool, error) {
	bucket, object, err := googleStorageAddr(uri)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	client, err := l.gcsClient(ctx)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	obj := client.Bucket(bucket).Object(object)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return body, attrs.Updated, true, nil
}

func (l *Loader) statModified(ctx context.Context, path string) (time.Time, error) {
	switch {
	case strings.HasPrefix(path, "gs://"):
		bucket, object, err := googleStorageAddr(path)
		if err != nil {
			return time.Time{}, err
		}
		client, err := l.gcsClient(ctx)
		if err != nil {
			return time.Time{}, err
		}
		attrs, err := client.Bucket(bucket).Object(object).Attrs(ctx)
		if err != nil {
			if err == storage.ErrObjectNotExist {
				return time.Time{}, nil
			}
			return time.Time{}, err
		}
		return attrs.Updated, nil
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		_, modified, _, err := l.fetchHTTP(ctx, path)
		return modified, err
	default:
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return time.Time{}, nil
			}
			return time.Time{}, err
		}
		return info.ModTime(), nil
	}
}

func (l *Loader) gcsClient(ctx context.Context) (*storage.Client, error) {
	if l.gcs != nil {
		return l.gcs, nil
	}
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not create storage client: %w", err)
	}
	l.gcs = c
	return c, nil
}

// googleStorageAddr splits a gs://bucket/object URI, grounded on
// cmd/oceantv/broadcast/storage.go's googleStorageAddr.
func googleStorageAddr(uri string) (bucket, object string, err error) {
	const prefix = "gs://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("not a gs:// uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed gs:// uri: %s", uri)
	}
	return parts[0], parts[1], nil
}
