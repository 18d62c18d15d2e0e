package checker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 2025-06-10 — вторник.
func tuesdayAt(hour, minute int) time.Time {
	return time.Date(2025, 6, 10, hour, minute, 0, 0, time.UTC)
}

func TestScheduleBook_DueWithinWindow(t *testing.T) {
	b := NewScheduleBook([]ScheduleConfig{{At: "09:00", Active: true}})

	require.False(t, b.Due(tuesdayAt(8, 58)))
	require.True(t, b.Due(tuesdayAt(8, 59))) // ±1 минута
}

func TestScheduleBook_RunsOncePerDay(t *testing.T) {
	b := NewScheduleBook([]ScheduleConfig{{At: "09:00", Active: true}})

	require.True(t, b.Due(tuesdayAt(9, 0)))
	require.False(t, b.Due(tuesdayAt(9, 1))) // уже бегали сегодня

	// На следующий день защёлка сбрасывается.
	require.True(t, b.Due(tuesdayAt(9, 0).Add(24*time.Hour)))
}

func TestScheduleBook_InactiveNeverDue(t *testing.T) {
	b := NewScheduleBook([]ScheduleConfig{{At: "09:00", Active: false}})
	require.False(t, b.Due(tuesdayAt(9, 0)))
}

func TestScheduleBook_DayOfWeekMask(t *testing.T) {
	b := NewScheduleBook([]ScheduleConfig{{At: "09:00", Days: []string{"mon", "wed"}, Active: true}})
	require.False(t, b.Due(tuesdayAt(9, 0))) // вторник не в маске

	b2 := NewScheduleBook([]ScheduleConfig{{At: "09:00", Days: []string{"tuesday"}, Active: true}})
	require.True(t, b2.Due(tuesdayAt(9, 0)))
}

func TestScheduleBook_MalformedScheduleOnlyDisablesItself(t *testing.T) {
	b := NewScheduleBook([]ScheduleConfig{
		{At: "garbage", Active: true},
		{At: "25:99", Active: true},
		{At: "09:00", Days: []string{"noday"}, Active: true},
		{At: "10:00", Active: true},
	})
	require.False(t, b.Due(tuesdayAt(9, 0)))
	require.True(t, b.Due(tuesdayAt(10, 0)))
}

func TestScheduleBook_MultipleSchedules(t *testing.T) {
	b := NewScheduleBook([]ScheduleConfig{
		{At: "09:00", Active: true},
		{At: "15:00", Active: true},
	})
	require.True(t, b.Due(tuesdayAt(9, 0)))
	require.True(t, b.Due(tuesdayAt(15, 0)))
	require.False(t, b.Due(tuesdayAt(15, 1)))
}
