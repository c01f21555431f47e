package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_Validate(t *testing.T) {
	assert.Error(t, Window(0).Validate())
	assert.Error(t, Window(-3).Validate())
	assert.NoError(t, Window(1).Validate())
	assert.NoError(t, Window(MaxWindowDays).Validate())
	assert.Error(t, Window(MaxWindowDays+1).Validate())
}

func TestWindow_Bounds_SharesHourBucket(t *testing.T) {
	early := time.Date(2025, 6, 1, 9, 2, 11, 0, time.UTC)
	late := time.Date(2025, 6, 1, 9, 58, 59, 0, time.UTC)

	minA, maxA := Window(7).Bounds(early)
	minB, maxB := Window(7).Bounds(late)

	assert.Equal(t, minA, minB, "instants in the same hour must issue the same query")
	assert.Equal(t, maxA, maxB)
	assert.Equal(t, 7*24*time.Hour, maxA.Sub(minA))

	minC, _ := Window(7).Bounds(late.Add(2 * time.Minute))
	assert.NotEqual(t, minA, minC, "crossing the hour starts a new bucket")
}

func TestWindow_Bounds_NormalizesToUTC(t *testing.T) {
	local := time.Date(2025, 6, 1, 11, 30, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	min, _ := Window(1).Bounds(local)

	assert.Equal(t, time.UTC, min.Location())
	assert.Equal(t, 9, min.Hour())
}

func TestSortByStart_OrdersAndBreaksTiesByID(t *testing.T) {
	base := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "c", Start: base.Add(time.Hour)},
		{ID: "b", Start: base},
		{ID: "a", Start: base},
	}

	SortByStart(events)

	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, "c", events[2].ID)
}
