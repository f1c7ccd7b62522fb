package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"pending", "running", "completed", "failed", "cancelled"} {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus(""))
	assert.False(t, IsValidStatus("done"))
}

func TestNewRun(t *testing.T) {
	scheduleID := "sched-1"
	r := New("job-1", &scheduleID, TriggerSchedule, []byte(`{"k":"v"}`))

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "job-1", r.JobID)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, TriggerSchedule, r.TriggeredBy)
	assert.Equal(t, &scheduleID, r.ScheduleID)
	assert.Nil(t, r.StartedAt)
}
