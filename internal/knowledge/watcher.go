package knowledge

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatcherCallback is called with the changed files after debounce.
type WatcherCallback func(changed []string)

// Watcher watches the documents directory tree and reports changed files.
type Watcher struct {
	watcher       *fsnotify.Watcher
	callback      WatcherCallback
	debounceDelay time.Duration
	logger        zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

// NewWatcher watches root and its subdirectories. The callback is invoked
// after debounce of inactivity.
func NewWatcher(root string, debounce time.Duration, callback WatcherCallback, logger zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	kw := &Watcher{
		watcher:       w,
		callback:      callback,
		debounceDelay: debounce,
		logger:        logger,
		pending:       make(map[string]struct{}),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	if err := kw.addTree(root); err != nil {
		w.Close()
		return nil, err
	}

	go kw.loop()
	return kw, nil
}

func (kw *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := kw.watcher.Add(path); err != nil {
			kw.logger.Warn().Err(err).Str("path", path).Msg("watcher: failed to watch directory")
			return nil
		}
		kw.logger.Debug().Str("path", path).Msg("watcher: watching directory")
		return nil
	})
}

func (kw *Watcher) loop() {
	defer close(kw.doneCh)
	for {
		select {
		case event, ok := <-kw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				// new subdirectories need their own watch
				_ = kw.addTree(event.Name)
			}
			if !Supported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			kw.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("watcher: file changed")
			kw.addPending(event.Name)

		case err, ok := <-kw.watcher.Errors:
			if !ok {
				return
			}
			kw.logger.Error().Err(err).Msg("watcher: error")

		case <-kw.stopCh:
			return
		}
	}
}

func (kw *Watcher) addPending(file string) {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	if kw.stopped {
		return
	}

	kw.pending[file] = struct{}{}
	if kw.timer != nil {
		kw.timer.Stop()
	}
	kw.timer = time.AfterFunc(kw.debounceDelay, kw.firePending)
}

func (kw *Watcher) firePending() {
	kw.mu.Lock()
	if kw.stopped {
		kw.mu.Unlock()
		return
	}
	files := make([]string, 0, len(kw.pending))
	for f := range kw.pending {
		files = append(files, f)
	}
	kw.pending = make(map[string]struct{})
	kw.mu.Unlock()

	if len(files) == 0 {
		return
	}
	sort.Strings(files)

	kw.logger.Info().Int("files", len(files)).Msg("watcher: triggering ingest")
	kw.callback(files)
}

// Close stops the watcher and waits for its event loop to exit.
func (kw *Watcher) Close() error {
	kw.mu.Lock()
	if kw.stopped {
		kw.mu.Unlock()
		return nil
	}
	kw.stopped = true
	if kw.timer != nil {
		kw.timer.Stop()
	}
	kw.mu.Unlock()

	close(kw.stopCh)
	err := kw.watcher.Close()
	<-kw.doneCh
	return err
}
