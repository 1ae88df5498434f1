package logstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/safetynet/internal/core"
)

func entryAt(camera string, ts string) core.LogEntry {
	return core.LogEntry{CameraName: camera, Function: core.FunctionPPE, Event: "PPE missing", Timestamp: ts}
}

func TestAppendCapsAndEvictsOldestInserted(t *testing.T) {
	s := New(0)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)
	for i := 0; i < DefaultCapacity; i++ {
		assert.Nil(t, s.Append(entryAt("cam", base.Add(time.Duration(i)*time.Second).Format(core.TimestampLayout))))
	}
	require.Equal(t, DefaultCapacity, s.Len())

	evicted := s.Append(entryAt("cam", "2025-06-02 00:00:00"))
	require.NotNil(t, evicted)
	assert.Equal(t, "2025-06-01 00:00:00", evicted.Timestamp)
	assert.Equal(t, DefaultCapacity, s.Len())
	assert.Equal(t, "2025-06-02 00:00:00", s.Entries()[0].Timestamp)

	for i := 0; i < 50; i++ {
		s.Append(entryAt("cam", "2025-06-03 00:00:00"))
		assert.LessOrEqual(t, s.Len(), DefaultCapacity)
	}
}

func TestBulkMergeSortsNewestFirst(t *testing.T) {
	s := New(10)
	s.BulkMerge([]core.LogEntry{
		entryAt("a", "2025-06-01 10:00:00"),
		entryAt("b", "garbage"),
		entryAt("c", "2025-06-01 12:00:00"),
		entryAt("d", "2025-06-01 11:00:00"),
	})

	var got []string
	for _, e := range s.Entries() {
		got = append(got, e.CameraName)
	}
	assert.Equal(t, []string{"c", "d", "a", "b"}, got)
}

func TestBulkMergeRespectsCapacity(t *testing.T) {
	s := New(3)
	var entries []core.LogEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, entryAt(fmt.Sprint(i), fmt.Sprintf("2025-06-01 10:00:0%d", i)))
	}
	s.BulkMerge(entries)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "4", s.Entries()[0].CameraName)
	assert.Equal(t, "2", s.Entries()[2].CameraName)
}

func TestBulkMergeDropsIdenticalEntries(t *testing.T) {
	s := New(10)
	s.Append(entryAt("gate", "2025-06-01 10:00:00"))

	hist := []core.LogEntry{
		entryAt("gate", "2025-06-01 10:00:00"),
		entryAt("gate", "2025-06-01 09:00:00"),
		entryAt("gate", "2025-06-01 09:00:00"),
	}
	s.BulkMerge(hist)
	require.Equal(t, 2, s.Len())

	// mesmo histórico de novo (câmera removida e registrada outra vez)
	s.BulkMerge(hist)
	require.Equal(t, 2, s.Len())

	// mesmo instante, evento diferente, continua
	other := entryAt("gate", "2025-06-01 09:00:00")
	other.Event = "helmet missing"
	s.BulkMerge([]core.LogEntry{other})
	assert.Equal(t, 3, s.Len())
}

// Depois do merge, entradas ao vivo só são prefixadas, mesmo com timestamp
// mais antigo que o histórico.
func TestLiveAppendAfterMergeIsNotResorted(t *testing.T) {
	s := New(10)
	s.BulkMerge([]core.LogEntry{entryAt("hist", "2025-06-01 12:00:00")})
	s.Append(entryAt("late", "2025-06-01 09:00:00"))

	entries := s.Entries()
	assert.Equal(t, "late", entries[0].CameraName)
	assert.Equal(t, "hist", entries[1].CameraName)
}

func TestQueryAndRemoveCamera(t *testing.T) {
	s := New(10)
	s.Append(core.LogEntry{CameraName: "a", Function: core.FunctionBlur})
	s.Append(core.LogEntry{CameraName: "b", Function: core.FunctionPPE})
	s.Append(core.LogEntry{CameraName: "a", Function: core.FunctionPPE})

	assert.Len(t, s.Query(Filter{Camera: "a"}), 2)
	assert.Len(t, s.Query(Filter{Function: core.FunctionPPE}), 2)
	assert.Len(t, s.Query(Filter{Camera: "a", Function: core.FunctionBlur}), 1)
	assert.Len(t, s.Query(Filter{Limit: 1}), 1)

	assert.Equal(t, 2, s.RemoveCamera("a"))
	assert.Equal(t, 1, s.Len())
}

func TestMergeBatchCompletesOnLastCallback(t *testing.T) {
	// 2 câmeras x (detections + trespass) = 4 callbacks
	b := NewMergeBatch(4)
	assert.False(t, b.Complete("a/detections", []core.LogEntry{entryAt("a", "2025-06-01 10:00:00")}, nil))
	assert.False(t, b.Complete("a/trespass", nil, errors.New("timeout")))
	assert.False(t, b.Complete("b/detections", []core.LogEntry{entryAt("b", "2025-06-01 11:00:00")}, nil))
	assert.True(t, b.Complete("b/trespass", nil, errors.New("refused")))

	assert.Equal(t, 2, b.Failures())
	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].CameraName)

	assert.False(t, b.Complete("late", nil, nil))
	assert.Equal(t, 4, b.Received())
}

func TestEmptyMergeBatchIsDone(t *testing.T) {
	assert.True(t, NewMergeBatch(0).Done())
}
