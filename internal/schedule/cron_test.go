package schedule_test

import (
	"testing"
	"time"

	"github.com/glizzus/framegrab/internal/schedule"
	"github.com/google/go-cmp/cmp"
)

func TestNextRunTimesAfterSuccess(t *testing.T) {
	table := []struct {
		cron  string
		after time.Time
		n     int
		want  []time.Time
	}{
		{
			cron:  "0 * * * *", // Hourly, the default sweep
			after: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
				time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
				time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
			},
		},
		{
			cron:  "30 3 * * *", // Nightly at 03:30
			after: time.Date(2026, 2, 27, 4, 0, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2026, 2, 28, 3, 30, 0, 0, time.UTC),
				time.Date(2026, 3, 1, 3, 30, 0, 0, time.UTC),
				time.Date(2026, 3, 2, 3, 30, 0, 0, time.UTC),
			},
		},
		{
			cron:  "@weekly", // Sundays at midnight
			after: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			n:     2,
			want: []time.Time{
				time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
				time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tc := range table {
		t.Run(tc.cron, func(t *testing.T) {
			got, err := schedule.NextRunTimesAfter(tc.cron, tc.after, tc.n)
			if err != nil {
				t.Fatalf("NextRunTimesAfter(%q, %v, %d) returned error: %v", tc.cron, tc.after, tc.n, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("NextRunTimesAfter(%q) mismatch (-want +got):\n%s", tc.cron, diff)
			}
		})
	}
}

func TestNextRunTimesAfterFailure(t *testing.T) {
	table := []struct {
		name string
		cron string
		n    int
	}{
		{name: "invalid expression", cron: "every hour", n: 1},
		{name: "non-positive count", cron: "0 * * * *", n: 0},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schedule.NextRunTimesAfter(tc.cron, time.Now(), tc.n)
			if err == nil {
				t.Fatalf("NextRunTimesAfter(%q, %d) expected error but got result: %v", tc.cron, tc.n, got)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	got, err := schedule.NextRun("0 * * * *")
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	if !got.After(time.Now()) || got.After(time.Now().Add(time.Hour)) {
		t.Errorf("NextRun() = %v, want within the next hour", got)
	}
	if got.Minute() != 0 || got.Location() != time.UTC {
		t.Errorf("NextRun() = %v, want the top of an hour in UTC", got)
	}
}

func TestValidateCron(t *testing.T) {
	if err := schedule.ValidateCron("*/15 * * * *"); err != nil {
		t.Errorf("ValidateCron() error = %v", err)
	}
	if err := schedule.ValidateCron("0 0 * *"); err == nil {
		t.Error("ValidateCron() error = nil, want error")
	}
}
