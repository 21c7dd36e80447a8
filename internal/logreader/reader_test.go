package logreader

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const qcliIdlePattern = `\x1b\[38;5;13m>\x1b\[39m`

func newTestReader(t *testing.T) *Reader {
	return NewReader(t.TempDir(), 0, nil)
}

func writeLog(t *testing.T, r *Reader, id, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(r.LogPath(id), []byte(content), 0644))
}

func appendLog(t *testing.T, r *Reader, id, content string) {
	t.Helper()
	f, err := os.OpenFile(r.LogPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

// ----------------------------------------------------------------------------
// LineBuffer
// ----------------------------------------------------------------------------

func TestLineBufferDefaultCapacity(t *testing.T) {
	b := NewLineBuffer(0)
	for i := 0; i < DefaultBufferLines+10; i++ {
		b.Add(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, DefaultBufferLines, b.Len())
}

func TestLineBufferEviction(t *testing.T) {
	b := NewLineBuffer(3)
	for i := 0; i < 5; i++ {
		b.Add(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, "line 2\nline 3\nline 4", b.Content())
}

func TestLineBufferSkipsBlankLines(t *testing.T) {
	b := NewLineBuffer(10)
	b.AddContent("one\n\n   \ntwo\r\n\nthree")
	assert.Equal(t, "one\ntwo\nthree", b.Content())
}

func TestLineBufferContent(t *testing.T) {
	b := NewLineBuffer(10)
	assert.Equal(t, "", b.Content())

	b.Add("only")
	assert.Equal(t, "only", b.Content())

	b.Add("second")
	assert.Equal(t, "only\nsecond", b.Content())
}

func TestLineBufferMatches(t *testing.T) {
	b := NewLineBuffer(10)
	b.Add("Welcome to the agent")
	b.Add("\x1b[38;5;13m>\x1b[39m ")

	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"simple substring", "Welcome", true},
		{"ansi prompt regex", qcliIdlePattern, true},
		{"no match", "goodbye", false},
		{"empty pattern", "", false},
		{"invalid regex", "[invalid(", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Matches(tt.pattern))
		})
	}
}

func TestLineBufferClear(t *testing.T) {
	b := NewLineBuffer(10)
	b.Add("line")
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "", b.Content())
}

// ----------------------------------------------------------------------------
// positionTracker
// ----------------------------------------------------------------------------

func TestPositionTrackerSetGet(t *testing.T) {
	tr := newPositionTracker()
	assert.Equal(t, int64(0), tr.Get("t1"))

	tr.Set("t1", 42)
	tr.Set("t2", 7)
	assert.Equal(t, int64(42), tr.Get("t1"))
	assert.Equal(t, int64(7), tr.Get("t2"))
}

func TestPositionTrackerReset(t *testing.T) {
	tr := newPositionTracker()
	tr.Set("t1", 42)
	tr.Reset("t1")
	assert.Equal(t, int64(0), tr.Get("t1"))
}

func TestPositionTrackerAllAndClear(t *testing.T) {
	tr := newPositionTracker()
	tr.Set("t1", 1)
	tr.Set("t2", 2)

	all := tr.All()
	assert.Equal(t, map[string]int64{"t1": 1, "t2": 2}, all)

	// Mutating the copy must not affect the tracker
	all["t1"] = 99
	assert.Equal(t, int64(1), tr.Get("t1"))

	tr.Clear()
	assert.Empty(t, tr.All())
}

func TestPositionTrackerConcurrent(t *testing.T) {
	tr := newPositionTracker()
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Set(id, int64(j))
				_ = tr.Get(id)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		assert.Equal(t, int64(99), tr.Get(fmt.Sprintf("t%d", i)))
	}
}

// ----------------------------------------------------------------------------
// Reader
// ----------------------------------------------------------------------------

func TestReadNewMissingFile(t *testing.T) {
	r := newTestReader(t)
	content, ok := r.ReadNew("missing")
	assert.False(t, ok)
	assert.Equal(t, "", content)
}

func TestReadNewEmptyFile(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "")

	content, ok := r.ReadNew("t1")
	assert.True(t, ok)
	assert.Equal(t, "", content)
}

func TestReadNewIncremental(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "line1\n")

	content, ok := r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, "line1\n", content)

	appendLog(t, r, "t1", "line2\n")
	content, ok = r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, "line2\n", content)
}

func TestReadNewNoGrowth(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "line1\n")

	_, ok := r.ReadNew("t1")
	require.True(t, ok)
	posAfterFirst := r.Position("t1")

	content, ok := r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, "", content)
	assert.Equal(t, posAfterFirst, r.Position("t1"))
}

func TestReadNewPositionAdvances(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "abc\n")
	_, ok := r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, int64(4), r.Position("t1"))

	appendLog(t, r, "t1", "defgh\n")
	_, ok = r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, int64(10), r.Position("t1"))
}

func TestReadNewTruncationResets(t *testing.T) {
	r := newTestReader(t)
	initial := ""
	for i := 0; i < 10; i++ {
		initial += "Initial content\n"
	}
	writeLog(t, r, "t1", initial)

	_, ok := r.ReadNew("t1")
	require.True(t, ok)
	require.Equal(t, int64(len(initial)), r.Position("t1"))

	// Rotate: replace with a shorter file
	writeLog(t, r, "t1", "Rotated content\n")

	content, ok := r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, "Rotated content\n", content)
	assert.Equal(t, int64(len("Rotated content\n")), r.Position("t1"))
}

func TestUpdateBufferAndContent(t *testing.T) {
	r := newTestReader(t)
	r.UpdateBuffer("t1", "one\ntwo\n\nthree\n")
	assert.Equal(t, "one\ntwo\nthree", r.BufferedContent("t1"))
}

func TestUpdateBufferHonorsCapacity(t *testing.T) {
	r := NewReader(t.TempDir(), 3, nil)
	for i := 0; i < 5; i++ {
		r.UpdateBuffer("t1", fmt.Sprintf("line %d\n", i))
	}
	assert.Equal(t, "line 2\nline 3\nline 4", r.BufferedContent("t1"))
}

func TestMatchesIdlePattern(t *testing.T) {
	r := newTestReader(t)
	r.UpdateBuffer("t1", "Some output\n\x1b[38;5;13m>\x1b[39m \n")

	assert.True(t, r.MatchesIdlePattern("t1", qcliIdlePattern))
	assert.False(t, r.MatchesIdlePattern("t1", "nope"))
	assert.False(t, r.MatchesIdlePattern("t1", "[invalid("))
	assert.False(t, r.MatchesIdlePattern("unknown", qcliIdlePattern))
}

func TestSyncAndCheck(t *testing.T) {
	r := newTestReader(t)

	// Missing file
	content, ok := r.SyncAndCheck("t1", qcliIdlePattern)
	assert.False(t, ok)
	assert.Equal(t, "", content)

	// File with idle prompt
	writeLog(t, r, "t1", "agent says hi\n\x1b[38;5;13m>\x1b[39m \n")
	content, ok = r.SyncAndCheck("t1", qcliIdlePattern)
	assert.True(t, ok)
	assert.Contains(t, content, "agent says hi")

	// No new content keeps the previous buffer and still matches
	content, ok = r.SyncAndCheck("t1", qcliIdlePattern)
	assert.True(t, ok)
	assert.Contains(t, content, "agent says hi")
}

func TestResetTerminal(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "line1\n")
	_, ok := r.ReadNew("t1")
	require.True(t, ok)
	r.UpdateBuffer("t1", "line1\n")

	r.ResetTerminal("t1")

	assert.Equal(t, int64(0), r.Position("t1"))
	assert.Equal(t, "", r.BufferedContent("t1"))

	// Re-reads from the start after reset
	content, ok := r.ReadNew("t1")
	require.True(t, ok)
	assert.Equal(t, "line1\n", content)
}

func TestClearAll(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "line1\n")
	writeLog(t, r, "t2", "line2\n")
	_, _ = r.ReadNew("t1")
	_, _ = r.ReadNew("t2")
	r.UpdateBuffer("t1", "line1\n")

	r.ClearAll()

	assert.Equal(t, int64(0), r.Position("t1"))
	assert.Equal(t, int64(0), r.Position("t2"))
	assert.Equal(t, "", r.BufferedContent("t1"))
}

func TestReaderFullWorkflow(t *testing.T) {
	r := newTestReader(t)
	writeLog(t, r, "t1", "Starting agent\n")

	content, ok := r.SyncAndCheck("t1", qcliIdlePattern)
	require.True(t, ok)
	assert.NotContains(t, content, "\x1b")

	appendLog(t, r, "t1", "Working on it...\n")
	_, ok = r.SyncAndCheck("t1", qcliIdlePattern)
	require.True(t, ok)

	appendLog(t, r, "t1", "\x1b[38;5;13m>\x1b[39m \n")
	content, ok = r.SyncAndCheck("t1", qcliIdlePattern)
	require.True(t, ok)
	assert.True(t, r.MatchesIdlePattern("t1", qcliIdlePattern))
	assert.Contains(t, content, "Working on it...")
}

func TestReaderConcurrentTerminals(t *testing.T) {
	r := newTestReader(t)
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		writeLog(t, r, id, "")
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				appendLog(t, r, id, fmt.Sprintf("line %d\n", j))
				if content, ok := r.ReadNew(id); ok && content != "" {
					r.UpdateBuffer(id, content)
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		// Drain whatever the goroutine's reads missed
		if content, ok := r.ReadNew(id); ok && content != "" {
			r.UpdateBuffer(id, content)
		}
		assert.Contains(t, r.BufferedContent(id), "line 19")
		assert.True(t, r.Position(id) > 0)
	}
}
