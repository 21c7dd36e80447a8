package logreader

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
)

// Reader incrementally reads per-terminal log files.
//
// File reads for the same terminal are serialized with a per-terminal mutex;
// offsets and line buffers live behind their own locks so independent
// terminals never contend with each other.
type Reader struct {
	dir         string
	bufferLines int
	logger      *logger.Logger

	positions *positionTracker

	buffersMu sync.RWMutex
	buffers   map[string]*LineBuffer

	fileMuMu sync.Mutex
	fileMu   map[string]*sync.Mutex
}

// NewReader creates a Reader for log files under dir, retaining bufferLines
// lines per terminal (DefaultBufferLines when non-positive).
func NewReader(dir string, bufferLines int, log *logger.Logger) *Reader {
	if log == nil {
		log = logger.Default()
	}
	if bufferLines <= 0 {
		bufferLines = DefaultBufferLines
	}
	return &Reader{
		dir:         dir,
		bufferLines: bufferLines,
		logger:      log.WithFields(zap.String("component", "log-reader")),
		positions:   newPositionTracker(),
		buffers:     make(map[string]*LineBuffer),
		fileMu:      make(map[string]*sync.Mutex),
	}
}

// LogPath returns the log file path for a terminal.
func (r *Reader) LogPath(id string) string {
	return filepath.Join(r.dir, id+".log")
}

func (r *Reader) fileLock(id string) *sync.Mutex {
	r.fileMuMu.Lock()
	defer r.fileMuMu.Unlock()
	if mu, ok := r.fileMu[id]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	r.fileMu[id] = mu
	return mu
}

func (r *Reader) buffer(id string) *LineBuffer {
	r.buffersMu.Lock()
	defer r.buffersMu.Unlock()
	if buf, ok := r.buffers[id]; ok {
		return buf
	}
	buf := NewLineBuffer(r.bufferLines)
	r.buffers[id] = buf
	return buf
}

// ReadNew returns log content appended since the previous call.
// ok is false when the log file does not exist (or cannot be read); an empty
// string with ok=true means no new content. A file smaller than the stored
// offset is treated as rotated: the offset resets and the file is re-read
// from the start.
func (r *Reader) ReadNew(id string) (string, bool) {
	lock := r.fileLock(id)
	lock.Lock()
	defer lock.Unlock()

	path := r.LogPath(id)
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", false
	}
	size := info.Size()

	pos := r.positions.Get(id)
	if pos > size {
		r.logger.Info("log file truncated, resetting position",
			zap.String("terminal_id", id),
			zap.Int64("position", pos),
			zap.Int64("size", size))
		pos = 0
	}

	if pos == size {
		return "", true
	}

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return "", false
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", false
	}

	r.positions.Set(id, pos+int64(len(data)))
	return string(data), true
}

// UpdateBuffer appends content's non-empty lines to the terminal's window.
func (r *Reader) UpdateBuffer(id, content string) {
	if content == "" {
		return
	}
	lock := r.fileLock(id)
	lock.Lock()
	defer lock.Unlock()
	r.buffer(id).AddContent(content)
}

// BufferedContent returns the terminal's buffered lines joined with newlines.
func (r *Reader) BufferedContent(id string) string {
	lock := r.fileLock(id)
	lock.Lock()
	defer lock.Unlock()
	return r.buffer(id).Content()
}

// MatchesIdlePattern reports whether the terminal's buffered content matches
// the pattern. Empty or invalid patterns never match.
func (r *Reader) MatchesIdlePattern(id, pattern string) bool {
	lock := r.fileLock(id)
	lock.Lock()
	defer lock.Unlock()
	return r.buffer(id).Matches(pattern)
}

// SyncAndCheck reads new content, folds it into the buffer, and returns the
// buffered content plus whether it matches the pattern. A missing log file
// yields ("", false).
func (r *Reader) SyncAndCheck(id, pattern string) (string, bool) {
	content, ok := r.ReadNew(id)
	if !ok {
		return "", false
	}
	if content != "" {
		r.UpdateBuffer(id, content)
	}
	return r.BufferedContent(id), r.MatchesIdlePattern(id, pattern)
}

// Position returns the stored byte offset for a terminal.
func (r *Reader) Position(id string) int64 {
	return r.positions.Get(id)
}

// ResetTerminal drops the terminal's offset and buffered lines.
func (r *Reader) ResetTerminal(id string) {
	lock := r.fileLock(id)
	lock.Lock()
	r.positions.Reset(id)
	r.buffersMu.Lock()
	delete(r.buffers, id)
	r.buffersMu.Unlock()
	lock.Unlock()

	r.fileMuMu.Lock()
	delete(r.fileMu, id)
	r.fileMuMu.Unlock()
}

// ClearAll drops all offsets and buffers.
func (r *Reader) ClearAll() {
	r.positions.Clear()

	r.buffersMu.Lock()
	r.buffers = make(map[string]*LineBuffer)
	r.buffersMu.Unlock()

	r.fileMuMu.Lock()
	r.fileMu = make(map[string]*sync.Mutex)
	r.fileMuMu.Unlock()
}
