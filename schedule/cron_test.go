package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("* * * * *"))
	assert.NoError(t, ValidateCron("0 3 * * *"))
	assert.NoError(t, ValidateCron("*/15 9-17 * * 1-5"))

	assert.Error(t, ValidateCron(""))
	assert.Error(t, ValidateCron("not a cron"))
	assert.Error(t, ValidateCron("* * * *")) // 4 fields
	assert.Error(t, ValidateCron("61 * * * *"))
}

func TestNextOccurrence(t *testing.T) {
	from := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	next, err := NextOccurrence("0 3 * * *", "", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)

	// Later the same day
	next, err = NextOccurrence("0 15 * * *", "", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), next)

	// Every minute fires at the next whole minute
	next, err = NextOccurrence("* * * * *", "", from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Minute), next)
}

func TestNextOccurrenceIsStrictlyAfterFrom(t *testing.T) {
	// from is exactly on a firing boundary; next must be the following one
	from := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	next, err := NextOccurrence("0 3 * * *", "", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceTimezone(t *testing.T) {
	// 09:00 in New York is 13:00 UTC while DST is active
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextOccurrence("0 9 * * *", "America/New_York", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextOccurrenceFallback(t *testing.T) {
	from := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	next, err := NextOccurrence("garbage", "", from)
	assert.Error(t, err)
	assert.Equal(t, from.Add(FallbackDelay), next)

	next, err = NextOccurrence("0 3 * * *", "Not/AZone", from)
	assert.Error(t, err)
	assert.Equal(t, from.Add(FallbackDelay), next)
}

func TestOccurrencesInRange(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(5 * time.Minute)

	occ, err := OccurrencesInRange("* * * * *", "", from, to, 100)
	require.NoError(t, err)
	require.Len(t, occ, 5)
	assert.Equal(t, from.Add(time.Minute), occ[0])
	assert.Equal(t, to, occ[4])

	// Ascending order
	for i := 1; i < len(occ); i++ {
		assert.True(t, occ[i].After(occ[i-1]))
	}
}

func TestOccurrencesInRangeCap(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	occ, err := OccurrencesInRange("* * * * *", "", from, to, 10)
	require.NoError(t, err)
	assert.Len(t, occ, 10)
}

func TestOccurrencesInRangeEmpty(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 30, 0, time.UTC)

	// Window too short to contain a whole-minute boundary
	occ, err := OccurrencesInRange("* * * * *", "", from, from.Add(10*time.Second), 100)
	require.NoError(t, err)
	assert.Empty(t, occ)

	occ, err = OccurrencesInRange("0 3 * * *", "", from, from, 100)
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestOccurrencesInRangeInvalidExpr(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := OccurrencesInRange("garbage", "", from, from.Add(time.Hour), 100)
	assert.Error(t, err)
}
