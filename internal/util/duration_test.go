package util

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"hours", "4h", 4 * time.Hour},
		{"composite", "2h30m", 150 * time.Minute},
		{"negative", "-30m", -30 * time.Minute},
		{"crowdsec style", "3h59m59s", 4*time.Hour - time.Second},
		{"fractional seconds", "1.5s", 1500 * time.Millisecond},
		{"days and weeks", "1w2d", 9 * 24 * time.Hour},
		{"uppercase units", "2H", 2 * time.Hour},
		{"milliseconds", "250ms", 250 * time.Millisecond},
		{"sub millisecond rounds up", "600us", time.Millisecond},
		{"sub millisecond rounds down", "400µs", 0},
		{"nanoseconds", "1000000ns", time.Millisecond},
		{"unknown unit ignored", "5x10m", 10 * time.Minute},
		{"no tokens", "forever", 0},
		{"repeated dots use prefix", "1.5.5s", 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.input))
		})
	}
}

func TestParseDuration_UnitEquivalence(t *testing.T) {
	assert.Equal(t, ParseDuration("150m"), ParseDuration("2h30m"))
	assert.Equal(t, int64(-1800000), ParseDuration("-30m").Milliseconds())
}

func TestCalculateExpiration(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC), CalculateExpiration("4h", base))
	assert.Equal(t, base.Add(-time.Minute), CalculateExpiration("-1m", base))

	before := time.Now()
	got := CalculateExpiration("1h", time.Time{})
	assert.WithinDuration(t, before.Add(time.Hour), got, 2*time.Second)
}

func TestParseDuration_ClampsOverflow(t *testing.T) {
	longest := time.Duration(math.MaxInt64/int64(time.Millisecond)) * time.Millisecond

	assert.Equal(t, longest, ParseDuration("99999999999w"))
	assert.Equal(t, -longest, ParseDuration("-99999999999w"))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, CalculateExpiration("99999999999w", base).After(base.AddDate(200, 0, 0)))
}

func TestParseRetentionPeriod(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		ok    bool
	}{
		{"1d", 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{"1m", 30 * 24 * time.Hour, true},
		{"1y", 365 * 24 * time.Hour, true},
		{"7D", 7 * 24 * time.Hour, true},
		{" 3d ", 3 * 24 * time.Hour, true},
		{"", 0, false},
		{"1.5d", 0, false},
		{"10h", 0, false},
		{"d", 0, false},
		{"-1d", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseRetentionPeriod(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateRetentionCutoff(t *testing.T) {
	_, ok := CalculateRetentionCutoff("")
	assert.False(t, ok)

	_, ok = CalculateRetentionCutoff("bogus")
	assert.False(t, ok)

	cutoff, ok := CalculateRetentionCutoff("1d")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), cutoff, 2*time.Second)
}
