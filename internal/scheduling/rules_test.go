package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

func TestRulesFromConfig(t *testing.T) {
	cfg := config.SchedulingConfig{
		BusinessOpen:     "09:00",
		BusinessClose:    "17:30",
		MaxDaysAhead:     14,
		AllowedDurations: []int{30, 60},
		SlotGranularity:  30,
		MaxCalendarDays:  31,
	}

	rules, err := RulesFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, timerange.MustNew(540, 1050), rules.BusinessHours)
	assert.True(t, rules.DurationAllowed(30))
	assert.False(t, rules.DurationAllowed(120))

	cfg.SlotGranularity = 5
	_, err = RulesFromConfig(cfg)
	assert.Error(t, err)

	cfg.SlotGranularity = 60
	_, err = RulesFromConfig(cfg)
	assert.ErrorIs(t, err, types.ErrInvalidInput, "510 business minutes do not split into hours")

	cfg.SlotGranularity = 30
	cfg.BusinessOpen = "9am"
	_, err = RulesFromConfig(cfg)
	assert.Error(t, err)
}

func TestRules_CheckDateWindow(t *testing.T) {
	rules := DefaultRules()
	// Late evening UTC still counts as the same calendar day
	now := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		date string
		want error
	}{
		{"2025-06-01", nil},
		{"2025-07-01", nil},
		{"2025-05-31", types.ErrPastDate},
		{"2025-07-02", types.ErrDateTooFar},
		{"2025-6-1", types.ErrInvalidDateFormat},
		{"2025-02-30", types.ErrInvalidDateFormat},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			err := rules.CheckDateWindow(tt.date, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRules_CheckGranularity(t *testing.T) {
	rules := DefaultRules()

	for _, minutes := range []int{15, 45, 60, 90, 240} {
		assert.NoError(t, rules.CheckGranularity(minutes), "%d", minutes)
	}
	for _, minutes := range []int{0, 10, 50, 100, 300} {
		assert.ErrorIs(t, rules.CheckGranularity(minutes), types.ErrInvalidInput, "%d", minutes)
	}
}

func TestRules_CheckBusinessHours(t *testing.T) {
	rules := DefaultRules()

	assert.NoError(t, rules.CheckBusinessHours(timerange.MustNew(480, 1200)))
	assert.ErrorIs(t, rules.CheckBusinessHours(timerange.MustNew(479, 540)), types.ErrOutOfBusinessHours)
	assert.ErrorIs(t, rules.CheckBusinessHours(timerange.MustNew(1140, 1201)), types.ErrOutOfBusinessHours)
}
