package opmon

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 3; i++ {
		m.StartOperation("tick").Finish(time.Hour)
	}
	m.StartOperation("receive").Finish(time.Hour)

	infos := m.Reset()
	assert.Equal(t, 2, len(infos))
	assert.Equal(t, "receive", infos[0].Name)
	assert.Equal(t, "tick", infos[1].Name)
	assert.Equal(t, uint64(3), infos[1].Count)
	assert.T(t, infos[1].MaxDuration >= infos[1].Average(), "max should be >= average")

	assert.Equal(t, 0, len(m.Reset()))
	m.StartOperation("dump").Finish(0)
	m.Dump()
}
