package streak

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEscalationEveryFourth(t *testing.T) {
	tr := New(0, 0)
	var escalations []int
	for call := 1; call <= 12; call++ {
		_, escalated := tr.RecordViolation("cam")
		if escalated {
			escalations = append(escalations, call)
		}
	}
	assert.Equal(t, []int{4, 8, 12}, escalations)
	assert.Equal(t, 0, tr.Streak("cam"))
}

func TestClearRestartsCount(t *testing.T) {
	tr := New(0, 0)
	tr.RecordViolation("cam")
	tr.RecordViolation("cam")
	streak, _ := tr.RecordViolation("cam")
	assert.Equal(t, 3, streak)

	tr.RecordClear("cam")
	streak, escalated := tr.RecordViolation("cam")
	assert.Equal(t, 1, streak)
	assert.False(t, escalated)
}

func TestStreaksArePerCamera(t *testing.T) {
	tr := New(0, 0)
	for i := 0; i < 3; i++ {
		tr.RecordViolation("a")
	}
	_, escalated := tr.RecordViolation("b")
	assert.False(t, escalated)
	_, escalated = tr.RecordViolation("a")
	assert.True(t, escalated)
}

func TestIsDuplicate(t *testing.T) {
	tr := New(0, 0)
	key := DedupKey("cam", "2025-06-01 10:00:00")
	assert.False(t, tr.IsDuplicate(key))
	assert.True(t, tr.IsDuplicate(key))
	assert.True(t, tr.IsDuplicate(key))
	assert.False(t, tr.IsDuplicate(DedupKey("other", "2025-06-01 10:00:00")))
}

func TestDedupSetIsBounded(t *testing.T) {
	tr := New(2, time.Hour)
	for i := 0; i < 3; i++ {
		assert.False(t, tr.IsDuplicate(fmt.Sprintf("k%d", i)))
	}
	// k0 foi despejada pelo limite de tamanho
	assert.False(t, tr.IsDuplicate("k0"))
}

func TestStatusChanged(t *testing.T) {
	tr := New(0, 0)
	assert.True(t, tr.StatusChanged("cam", "detected"))
	assert.False(t, tr.StatusChanged("cam", "detected"))
	assert.True(t, tr.StatusChanged("cam", "cleared"))
	assert.False(t, tr.StatusChanged("cam", "cleared"))

	assert.False(t, tr.StatusChanged("fresh", "cleared"))

	tr.Forget("cam")
	assert.True(t, tr.StatusChanged("cam", "detected"))
}
