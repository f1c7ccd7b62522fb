package run

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-buddy-sub001/db"
	"github.com/HemSoft/hs-buddy-sub001/errors"
	buddytest "github.com/HemSoft/hs-buddy-sub001/internal/testing"
	"github.com/HemSoft/hs-buddy-sub001/job"
)

func createTestJob(t *testing.T, database *sql.DB) *job.Job {
	t.Helper()

	j, err := job.New("test-job", job.TypeExec, []byte(`{"command":"true"}`), nil)
	require.NoError(t, err)
	require.NoError(t, job.NewStore(database).Create(j))
	return j
}

func TestRunStoreCreateGet(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, []byte(`{"month":"2026-08"}`))
	require.NoError(t, store.Create(r))

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, j.ID, got.JobID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, TriggerManual, got.TriggeredBy)
	assert.Nil(t, got.ScheduleID)
	assert.JSONEq(t, `{"month":"2026-08"}`, string(got.Input))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.DurationMs)
}

func TestRunStoreGetNotFound(t *testing.T) {
	store := NewStore(buddytest.CreateTestDB(t))

	_, err := store.Get("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestClaimOldestPendingFIFO(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	var ids []string
	for i := 0; i < 3; i++ {
		r := New(j.ID, nil, TriggerManual, nil)
		require.NoError(t, store.Create(r))
		ids = append(ids, r.ID)
		time.Sleep(2 * time.Millisecond) // distinct created_at
	}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		claimed, claimedJob, err := store.ClaimOldestPending()
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.NotNil(t, claimedJob)

		assert.Equal(t, ids[i], claimed.ID, "claims must come out in creation order")
		assert.Equal(t, StatusRunning, claimed.Status)
		assert.NotNil(t, claimed.StartedAt)
		assert.Equal(t, j.ID, claimedJob.ID)

		assert.False(t, seen[claimed.ID], "a run must never be claimed twice")
		seen[claimed.ID] = true

		require.NoError(t, store.Complete(claimed.ID, "ok"))
	}

	// Queue drained
	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

// createFileTestDB opens a file-backed database whose pool can hold several
// real connections, unlike the in-memory test database which is pinned to
// one connection and therefore serializes all claims. The pragmas go in the
// DSN so every pooled connection gets them.
func createFileTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "buddy.db")
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	database, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database, nil))

	t.Cleanup(func() {
		database.Close()
	})
	return database
}

func TestClaimConcurrent(t *testing.T) {
	database := createFileTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, store.Create(New(j.ID, nil, TriggerManual, nil)))
	}

	var mu sync.Mutex
	claimed := make(map[string]int)

	const claimers = 4
	errCh := make(chan error, claimers)

	var wg sync.WaitGroup
	for w := 0; w < claimers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r, _, err := store.ClaimOldestPending()
				if err != nil {
					errCh <- err
					return
				}
				if r == nil {
					return
				}
				mu.Lock()
				claimed[r.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	assert.Len(t, claimed, total)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "run %s claimed more than once", id)
	}
}

func TestClaimRetriesWhenRunTakenMidClaim(t *testing.T) {
	database := createFileTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	first := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(first))
	time.Sleep(2 * time.Millisecond)
	second := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(second))

	// A rival transaction on a second pooled connection claims the oldest
	// run but stays open. The store's claim selects the same run, then
	// loses the conditional update once the rival commits, and must move
	// on to the next pending run instead of failing or double-claiming.
	tx, err := database.Begin()
	require.NoError(t, err)
	now := time.Now().UTC().Format(timeFormat)
	_, err = tx.Exec(`
		UPDATE runs
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, now, now, first.ID)
	require.NoError(t, err)

	type claimResult struct {
		r   *Run
		err error
	}
	done := make(chan claimResult, 1)
	go func() {
		r, _, err := store.ClaimOldestPending()
		done <- claimResult{r, err}
	}()

	// Give the claimer time to select the contested run, then release it
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, tx.Commit())

	select {
	case got := <-done:
		require.NoError(t, got.err)
		require.NotNil(t, got.r)
		assert.Equal(t, second.ID, got.r.ID, "claim must move on to the next pending run")
	case <-time.After(10 * time.Second):
		t.Fatal("claim never returned")
	}

	state, err := store.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)
}

func TestClaimReturnsNilJobWhenJobDeleted(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))

	// Runs keep their job reference without a foreign key, so the run
	// survives job deletion and comes back with a nil job
	require.NoError(t, job.NewStore(database).Delete(j.ID))

	claimed, claimedJob, err := store.ClaimOldestPending()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Nil(t, claimedJob)
}

func TestCompleteComputesDuration(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))

	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Complete(claimed.ID, "all good"))

	got, err := store.Get(claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "all good", got.Output)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.DurationMs)
	assert.GreaterOrEqual(t, *got.DurationMs, int64(5))
}

func TestFail(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))

	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	require.NoError(t, store.Fail(claimed.ID, "command exited 1"))

	got, err := store.Get(claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "command exited 1", got.Error)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))

	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	require.NoError(t, store.Complete(claimed.ID, "done"))

	assert.True(t, errors.IsTerminalStateError(store.Complete(claimed.ID, "again")))
	assert.True(t, errors.IsTerminalStateError(store.Fail(claimed.ID, "boom")))
	assert.True(t, errors.IsTerminalStateError(store.Cancel(claimed.ID)))

	// Still exactly as first finished
	got, err := store.Get(claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Output)
}

func TestCompleteRequiresRunning(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))

	// Pending, never claimed
	assert.Error(t, store.Complete(r.ID, "out"))
	assert.Error(t, store.Fail(r.ID, "err"))
}

func TestCancelPendingOnly(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))
	require.NoError(t, store.Cancel(r.ID))

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// A running run cannot be cancelled through the store
	r2 := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r2))
	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	require.Equal(t, r2.ID, claimed.ID)

	err = store.Cancel(r2.ID)
	require.Error(t, err)
	assert.False(t, errors.IsTerminalStateError(err))

	got, err = store.Get(r2.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestCancelledRunIsNeverClaimed(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	r := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(r))
	require.NoError(t, store.Cancel(r.ID))

	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestFindActiveForSchedule(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)
	scheduleID := "sched-1"

	active, err := store.FindActiveForSchedule(scheduleID)
	require.NoError(t, err)
	assert.Nil(t, active)

	r := New(j.ID, &scheduleID, TriggerSchedule, nil)
	require.NoError(t, store.Create(r))

	active, err = store.FindActiveForSchedule(scheduleID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, r.ID, active.ID)

	// Running still counts as active
	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	active, err = store.FindActiveForSchedule(scheduleID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, claimed.ID, active.ID)

	// Terminal does not
	require.NoError(t, store.Complete(claimed.ID, "ok"))
	active, err = store.FindActiveForSchedule(scheduleID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCleanupKeepsActiveRuns(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	oldPending := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(oldPending))

	oldDone := New(j.ID, nil, TriggerManual, nil)
	require.NoError(t, store.Create(oldDone))

	// Age both runs far past any retention window
	past := time.Now().AddDate(0, 0, -90).UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	_, err := database.Exec("UPDATE runs SET created_at = ?", past)
	require.NoError(t, err)

	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	require.NoError(t, store.Complete(claimed.ID, "ok"))

	deleted, err := store.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.List(nil, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, StatusPending, remaining[0].Status)
}

func TestListFilterAndLimit(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(New(j.ID, nil, TriggerManual, nil)))
	}
	claimed, _, err := store.ClaimOldestPending()
	require.NoError(t, err)
	require.NoError(t, store.Fail(claimed.ID, "boom"))

	pending := StatusPending
	runs, err := store.List(&pending, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	failed := StatusFailed
	runs, err = store.List(&failed, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = store.List(nil, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetStats(t *testing.T) {
	database := buddytest.CreateTestDB(t)
	store := NewStore(database)
	j := createTestJob(t, database)

	require.NoError(t, store.Create(New(j.ID, nil, TriggerManual, nil)))
	require.NoError(t, store.Create(New(j.ID, nil, TriggerManual, nil)))
	_, _, err := store.ClaimOldestPending()
	require.NoError(t, err)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Running)
}
