// ABOUTME: Spool directory watcher for the producer tool
// ABOUTME: Turns files renamed or written into a directory into units
package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher emits a unit for each new <id>.<ext> file in a spool directory.
// Writers should create files under a temporary name and rename them into
// place; an id is emitted once no matter how many writes touch it.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *log.Logger
	units   chan Unit

	mu   sync.Mutex
	seen map[int64]bool

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Watch starts watching dir. Files already present are not emitted; load
// them with LoadDir first and pass their ids as seen.
func Watch(dir string, seen []int64, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:     dir,
		watcher: watcher,
		logger:  logger,
		units:   make(chan Unit, 64),
		seen:    make(map[int64]bool),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, id := range seen {
		w.seen[id] = true
	}

	go w.loop()
	return w, nil
}

// Units delivers new units. It is closed when the watcher stops.
func (w *Watcher) Units() <-chan Unit {
	return w.units
}

// Close stops watching and waits for the loop to exit
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer close(w.units)

	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handle(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(path string) {
	id, ok := ParseName(path)
	if !ok {
		return
	}

	w.mu.Lock()
	dup := w.seen[id]
	w.mu.Unlock()
	if dup {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		// not there yet, or still being created; a later write retries
		return
	}

	u, err := ReadUnit(path)
	if err != nil {
		w.logger.Warn("Failed to read spool file", "file", filepath.Base(path), "err", err)
		return
	}

	w.mu.Lock()
	w.seen[id] = true
	w.mu.Unlock()

	w.logger.Debug("Spool file ready", "id", id, "file", u.Name, "bytes", len(u.Data))
	select {
	case w.units <- u:
	case <-w.closed:
	}
}
