package domain

import (
	"testing"
	"time"
)

func TestTouchMarksPastDuePendingAsOverdue(t *testing.T) {
	due := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	inv := Invoice{Status: StatusPending, DueDate: due}

	got := inv.Touch(due.Add(24 * time.Hour))
	if got.Status != StatusOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}
	if inv.Status != StatusPending {
		t.Fatalf("receiver mutated to %s", inv.Status)
	}
}

func TestTouchLeavesOtherStatesAlone(t *testing.T) {
	due := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	later := due.Add(24 * time.Hour)

	cases := []struct {
		status Status
		asOf   time.Time
		want   Status
	}{
		{StatusPending, due, StatusPending},
		{StatusPaid, later, StatusPaid},
		{StatusCancelled, later, StatusCancelled},
		{StatusOverdue, later, StatusOverdue},
	}
	for _, tc := range cases {
		got := Invoice{Status: tc.status, DueDate: due}.Touch(tc.asOf)
		if got.Status != tc.want {
			t.Fatalf("Touch(%s at %s) = %s, want %s", tc.status, tc.asOf, got.Status, tc.want)
		}
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2025, time.February, 28},
		{2024, time.February, 29},
		{2025, time.April, 30},
		{2025, time.December, 31},
	}
	for _, tc := range cases {
		if got := DaysInMonth(tc.year, tc.month); got != tc.want {
			t.Fatalf("DaysInMonth(%d, %s) = %d, want %d", tc.year, tc.month, got, tc.want)
		}
	}
}

func TestDueDateForClampsToLastDay(t *testing.T) {
	cases := []struct {
		year   int
		month  time.Month
		dueDay int
		want   time.Time
	}{
		{2025, time.February, 30, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{2024, time.February, 31, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{2025, time.April, 31, time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)},
		{2025, time.March, 15, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{2025, time.March, 0, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := DueDateFor(tc.year, tc.month, tc.dueDay); !got.Equal(tc.want) {
			t.Fatalf("DueDateFor(%d, %s, %d) = %s, want %s", tc.year, tc.month, tc.dueDay, got, tc.want)
		}
	}
}
