package audit

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	t.Run("should persist and read back records", func(t *testing.T) {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Write(Record{
			CallID:     "call-1",
			Role:       "coder",
			Tool:       "file_operations:read_file",
			ProviderID: "files-1",
			Outcome:    "success",
			DurationMs: 42,
			Timestamp:  time.Now(),
		}))
		require.NoError(t, store.Write(Record{
			CallID:     "call-2",
			Role:       "guest",
			Tool:       "system_utilities:run_command",
			Outcome:    "permission_denied",
			DurationMs: 1,
			Timestamp:  time.Now(),
		}))

		records, err := store.Recent(10)
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "call-2", records[0].CallID)
		assert.Equal(t, "permission_denied", records[0].Outcome)
		assert.Equal(t, "call-1", records[1].CallID)
		assert.Equal(t, "files-1", records[1].ProviderID)
	})

	t.Run("should prune records past retention", func(t *testing.T) {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
		defer store.Close()

		old := Record{CallID: "old", Role: "coder", Tool: "t", Outcome: "success",
			Timestamp: time.Now().Add(-48 * time.Hour)}
		fresh := Record{CallID: "fresh", Role: "coder", Tool: "t", Outcome: "success",
			Timestamp: time.Now()}
		require.NoError(t, store.Write(old))
		require.NoError(t, store.Write(fresh))

		removed, err := store.Prune(24 * time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		records, err := store.Recent(10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "fresh", records[0].CallID)
	})

	t.Run("should reject an empty path", func(t *testing.T) {
		_, err := NewSQLiteStore("")
		assert.Error(t, err)
	})
}

// memStore collects writes in memory for sink tests
type memStore struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{} // when non-nil, Write waits on it
	closed  bool
}

func (m *memStore) Write(rec Record) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestAsyncSink(t *testing.T) {
	t.Run("should flush buffered records on close", func(t *testing.T) {
		store := &memStore{}
		sink := NewAsyncSink(store, 16, nil)

		for i := 0; i < 10; i++ {
			sink.Append(Record{CallID: "c", Outcome: "success"})
		}
		require.NoError(t, sink.Close())

		assert.Equal(t, 10, store.count())
		assert.True(t, store.closed)
	})

	t.Run("should drop instead of blocking when the buffer is full", func(t *testing.T) {
		var dropped atomic.Int64
		store := &memStore{block: make(chan struct{})}
		sink := NewAsyncSink(store, 2, func() { dropped.Add(1) })

		// The writer goroutine is stuck on the first record; two more fill
		// the buffer and the rest must drop without blocking this test.
		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				sink.Append(Record{CallID: "c"})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Append blocked on a full buffer")
		}

		close(store.block)
		require.NoError(t, sink.Close())

		assert.Positive(t, dropped.Load())
		assert.Equal(t, 10-int(dropped.Load()), store.count())
	})
}
