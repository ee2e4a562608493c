package catalog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"moad/internal/common/fsutil"
)

// Watcher observes the configuration file and invokes a reload callback when
// it changes. Editors replace files rather than writing in place, so the
// watch is on the parent directory and events are filtered by name.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()
	log      zerolog.Logger

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher builds a watcher for path. onChange runs on the watcher
// goroutine after the debounce interval elapses without further events.
func NewWatcher(path string, debounce time.Duration, onChange func(), log zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !fsutil.PathExists(filepath.Dir(abs)) {
		return nil, fmt.Errorf("watch %s: parent directory does not exist", abs)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	w := &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		log:      log,
		fw:       fw,
		done:     make(chan struct{}),
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.log.Info().Str("path", w.path).Msg("config change detected, reloading catalog")
			w.onChange()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
