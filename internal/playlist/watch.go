package playlist

import (
	"fmt"
	"path/filepath"

	"github.com/ausocean/utils/logging"
	"github.com/fsnotify/fsnotify"
)

// Watcher triggers onChange whenever the watched playlist file is
// rewritten. The directory is watched rather than the file itself, since
// playlist generators typically replace the file atomically (write to a
// temp name, then rename), which a direct file watch would miss — the same
// reasoning behind cmd/vidforward/watcher.go's watchFile.
type Watcher struct {
	watcher *fsnotify.Watcher
	file    string
	stop    chan struct{}
}

// WatchFile starts watching file's parent directory and calls onChange
// whenever file is written. Call Close to stop.
func WatchFile(file string, onChange func(), log logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("playlist: create watcher: %w", err)
	}

	w := &Watcher{watcher: fsw, file: file, stop: make(chan struct{})}

	go func() {
		for {
			select {
			case <-w.stop:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) && event.Name == file {
					if log != nil {
						log.Info("playlist file modification event", "file", file)
					}
					onChange()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				if log != nil {
					log.Error("playlist watcher error", "error", err)
				}
			}
		}
	}()

	if err := fsw.Add(filepath.Dir(file)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("playlist: watch %s: %w", file, err)
	}
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}
