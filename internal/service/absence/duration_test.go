package absence

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLeaveUnits(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       int64
	}{
		{"single day", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), 1},
		{"ten days", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), 10},
		{"leap february", time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 11},
		{"time of day ignored", time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC), time.Date(2025, 3, 2, 6, 0, 0, 0, time.UTC), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LeaveUnits(tt.start, tt.end)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestPermissionUnits(t *testing.T) {
	policy := absence.DefaultPolicy()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero length", 0, "0"},
		{"reversed", -time.Hour, "0"},
		{"one minute", time.Minute, "0.5"},
		{"exactly four hours", 4 * time.Hour, "0.5"},
		{"four hours one minute", 4*time.Hour + time.Minute, "1"},
		{"exactly eight hours", 8 * time.Hour, "1"},
		{"nine hours", 9 * time.Hour, "2"},
		{"sixteen hours", 16 * time.Hour, "2"},
		{"sixteen hours one minute", 16*time.Hour + time.Minute, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PermissionUnits(start, start.Add(tt.duration), policy)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}
