package schedule

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-buddy-sub001/errors"
	buddytest "github.com/HemSoft/hs-buddy-sub001/internal/testing"
	"github.com/HemSoft/hs-buddy-sub001/job"
)

func createTestJob(t *testing.T, database *sql.DB, name string) *job.Job {
	t.Helper()

	j, err := job.New(name, job.TypeExec, []byte(`{"command":"true"}`), nil)
	require.NoError(t, err)
	require.NoError(t, job.NewStore(database).Create(j))
	return j
}

func TestScheduleStoreCreateGet(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, err := New(j.ID, "0 3 * * *", "UTC", MissedCatchup, []byte(`{"depth":"full"}`))
	require.NoError(t, err)
	require.NoError(t, store.Create(s))

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, j.ID, got.JobID)
	assert.Equal(t, "0 3 * * *", got.Cron)
	assert.Equal(t, MissedCatchup, got.MissedPolicy)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.NextRunAt)
	assert.JSONEq(t, `{"depth":"full"}`, string(got.Params))
}

func TestScheduleStoreGetNotFound(t *testing.T) {
	store := NewStore(buddytest.CreateTestDB(t))

	_, err := store.Get("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestScheduleStoreRejectsUnknownJob(t *testing.T) {
	store := NewStore(buddytest.CreateTestDB(t))

	s, err := New("no-such-job", "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, err)
	assert.Error(t, store.Create(s))
}

func TestScheduleStoreListEnabled(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s1, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	s2, _ := New(j.ID, "0 4 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s1))
	require.NoError(t, store.Create(s2))
	require.NoError(t, store.Disable(s2.ID))

	enabled, err := store.ListEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, s1.ID, enabled[0].ID)

	all, err := store.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListForJob(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	backup := createTestJob(t, database, "backup")
	report := createTestJob(t, database, "report")

	s1, _ := New(backup.ID, "0 3 * * *", "", MissedSkip, nil)
	s2, _ := New(backup.ID, "0 4 * * *", "", MissedSkip, nil)
	s3, _ := New(report.ID, "0 5 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s1))
	require.NoError(t, store.Create(s2))
	require.NoError(t, store.Create(s3))

	// Disabled schedules still belong to the job
	require.NoError(t, store.Disable(s2.ID))

	scheds, err := store.ListForJob(backup.ID)
	require.NoError(t, err)
	require.Len(t, scheds, 2)
	for _, s := range scheds {
		assert.Equal(t, backup.ID, s.JobID)
	}

	scheds, err = store.ListForJob("no-such-job")
	require.NoError(t, err)
	assert.Empty(t, scheds)
}

func TestAdvanceNextRun(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s))

	next := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.AdvanceNextRun(s.ID, next))

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(next))
	// Advance alone does not record a firing
	assert.Nil(t, got.LastRunAt)
}

func TestMarkFired(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s))

	fired := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	next := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkFired(s.ID, fired, next))

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(fired))
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(next))
}

func TestSetLastOutcome(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s))

	require.NoError(t, store.SetLastOutcome(s.ID, "failed", time.Now()))

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.LastRunStatus)
}

func TestSetEnabledClearsNextRun(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s))
	require.NoError(t, store.AdvanceNextRun(s.ID, time.Now().Add(time.Hour)))

	require.NoError(t, store.SetEnabled(s.ID, false))
	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRunAt)

	// Re-enabling also leaves next_run_at nil for the scanner to initialize
	require.NoError(t, store.SetEnabled(s.ID, true))
	got, err = store.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.NextRunAt)
}

func TestUpdateCronClearsNextRun(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s))
	require.NoError(t, store.AdvanceNextRun(s.ID, time.Now().Add(time.Hour)))

	require.NoError(t, store.UpdateCron(s.ID, "30 4 * * *", "Europe/Copenhagen"))

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "30 4 * * *", got.Cron)
	assert.Equal(t, "Europe/Copenhagen", got.Timezone)
	assert.Nil(t, got.NextRunAt)
}

func TestNextScheduled(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s1, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	s2, _ := New(j.ID, "0 4 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s1))
	require.NoError(t, store.Create(s2))

	soon := time.Now().Add(10 * time.Minute)
	later := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.AdvanceNextRun(s1.ID, later))
	require.NoError(t, store.AdvanceNextRun(s2.ID, soon))

	next, err := store.NextScheduled()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, s2.ID, next.ID)

	// Disabled schedules do not count
	require.NoError(t, store.Disable(s2.ID))
	next, err = store.NextScheduled()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, s1.ID, next.ID)
}

func TestScheduleDelete(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database, "backup")

	s, _ := New(j.ID, "0 3 * * *", "", MissedSkip, nil)
	require.NoError(t, store.Create(s))
	require.NoError(t, store.Delete(s.ID))

	_, err := store.Get(s.ID)
	assert.True(t, errors.IsNotFoundError(err))

	assert.Error(t, store.Delete(s.ID))
}
