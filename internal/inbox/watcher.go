package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
)

// DefaultDebounce is the per-file quiet period before a log change event is
// published.
const DefaultDebounce = 100 * time.Millisecond

// Watcher turns filesystem writes on per-terminal log files into
// terminal.log.updated events.
//
// Providers stream scrollback into their logs while they work, so raw
// modification events arrive in bursts. The watcher debounces per file: a
// burst collapses into a single event, published once the log has been quiet
// for the debounce window.
type Watcher struct {
	dir      string
	debounce time.Duration
	eventBus bus.EventBus
	logger   *logger.Logger

	fsw *fsnotify.Watcher

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for *.log files under dir. debounce values
// <= 0 fall back to DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, eventBus bus.EventBus, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "inbox-watcher")),
		timers:   make(map[string]*time.Timer),
	}
}

// Start creates the log directory if needed and begins watching it. A
// running watcher ignores further calls.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", w.dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("inbox watcher started",
		zap.String("dir", w.dir),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop ends the watch and cancels pending debounce timers. A timer already
// past its quiet period may still publish while Stop runs.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false

	close(w.stopCh)
	if err := w.fsw.Close(); err != nil {
		w.logger.Debug("failed to close filesystem watcher", zap.Error(err))
	}
	w.wg.Wait()

	w.timersMu.Lock()
	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
	w.timersMu.Unlock()

	w.logger.Info("inbox watcher stopped")
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	if filepath.Ext(name) != ".log" {
		return
	}
	id := strings.TrimSuffix(name, ".log")
	if id == "" {
		return
	}

	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	if timer, ok := w.timers[id]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() { w.publishLogUpdated(id) })
}

func (w *Watcher) publishLogUpdated(id string) {
	w.timersMu.Lock()
	delete(w.timers, id)
	w.timersMu.Unlock()

	data := map[string]interface{}{"terminal_id": id}
	event := bus.NewEvent(events.TerminalLogUpdated, "inbox-watcher", data)
	if err := w.eventBus.Publish(context.Background(), events.BuildLogUpdatedSubject(id), event); err != nil {
		w.logger.Error("failed to publish log change event",
			zap.String("terminal_id", id),
			zap.Error(err))
	}
}
