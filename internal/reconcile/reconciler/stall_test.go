package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStallDetector_DeclaresStallAfterThreshold(t *testing.T) {
	d := NewStallDetector(3)
	reasons := map[string]string{"a.txt": "name conflict"}

	for i := 0; i < 2; i++ {
		d.RecordPass(false, reasons)
		assert.False(t, d.Stalled())
	}
	d.RecordPass(false, reasons)
	assert.True(t, d.Stalled())
	assert.Equal(t, reasons, d.Reasons())
}

func TestStallDetector_ProgressResetsStreak(t *testing.T) {
	d := NewStallDetector(2)
	d.RecordPass(false, map[string]string{"a": "x"})
	d.RecordPass(true, map[string]string{"a": "x"})
	assert.False(t, d.Stalled())
}

func TestStallDetector_NoUnresolvedNeverStalls(t *testing.T) {
	d := NewStallDetector(1)
	d.RecordPass(false, nil)
	assert.False(t, d.Stalled())
}

func TestStallDetector_NotifyClearsStreak(t *testing.T) {
	d := NewStallDetector(2)
	d.RecordPass(false, map[string]string{"a": "x"})
	d.NotifyReceived()
	d.RecordPass(false, map[string]string{"a": "x"})
	assert.False(t, d.Stalled())
}
