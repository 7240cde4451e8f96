package activity_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/activity"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestTrackerIdleTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := clock.Fake(start)
	tracker := activity.New(c)

	require.Equal(t, start, tracker.LastActive())
	c.Advance(10 * time.Minute)
	require.Equal(t, 10*time.Minute, tracker.IdleFor())

	tracker.Record(activity.Scroll)
	require.Equal(t, time.Duration(0), tracker.IdleFor())
	require.Equal(t, activity.Scroll, tracker.LastKind())

	c.Advance(time.Minute)
	tracker.Record(activity.EventKind("resize"))
	require.Equal(t, time.Minute, tracker.IdleFor())
	require.Equal(t, activity.Scroll, tracker.LastKind())
}

func TestTrackerRecordsEveryTrackedKind(t *testing.T) {
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker := activity.New(c)
	for _, kind := range activity.Tracked {
		c.Advance(time.Second)
		tracker.Record(kind)
		require.Equal(t, c.Now(), tracker.LastActive())
		require.Equal(t, kind, tracker.LastKind())
	}
}
