package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
)

var (
	durationToken   = regexp.MustCompile(`(?i)(-?[\d.]+)([a-zµ]+)`)
	retentionFormat = regexp.MustCompile(`(?i)^(\d+)(d|w|m|y)$`)
)

// Milliseconds per CrowdSec duration unit.
var durationUnits = map[string]float64{
	"ns": 1e-6,
	"us": 1e-3,
	"µs": 1e-3,
	"ms": 1,
	"s":  1000,
	"m":  60 * 1000,
	"h":  60 * 60 * 1000,
	"d":  24 * 60 * 60 * 1000,
	"w":  7 * 24 * 60 * 60 * 1000,
}

const day = 24 * time.Hour

var retentionUnits = map[string]time.Duration{
	"d": day,
	"w": 7 * day,
	"m": 30 * day,
	"y": 365 * day,
}

// ParseDuration converts a CrowdSec duration string such as "3h59m12.5s" or
// "-30m" into a time.Duration with millisecond resolution. Tokens with an
// unknown unit are logged and skipped; empty input yields zero.
func ParseDuration(text string) time.Duration {
	if text == "" {
		return 0
	}

	var totalMs float64
	for _, match := range durationToken.FindAllStringSubmatch(text, -1) {
		value, ok := parseLeadingFloat(match[1])
		if !ok {
			logger.Log().WithField("token", SanitizeForLog(match[0])).Warn("Ignoring malformed duration token")
			continue
		}
		unit := strings.ToLower(match[2])
		factor, known := durationUnits[unit]
		if !known {
			logger.Log().WithField("unit", SanitizeForLog(match[2])).Warn("Unknown duration unit")
			continue
		}
		totalMs += value * factor
	}

	ms := math.Floor(totalMs + 0.5)
	if ms > maxDurationMs || ms < -maxDurationMs {
		logger.Log().WithField("duration", SanitizeForLog(text)).Warn("Duration out of range, clamping")
		ms = math.Copysign(maxDurationMs, ms)
	}
	return time.Duration(ms) * time.Millisecond
}

// maxDurationMs is the largest millisecond count a time.Duration holds.
const maxDurationMs = float64(math.MaxInt64 / int64(time.Millisecond))

// parseLeadingFloat parses the longest numeric prefix of s, so "1.5.2"
// reads as 1.5.
func parseLeadingFloat(s string) (float64, bool) {
	if first := strings.IndexByte(s, '.'); first >= 0 {
		if second := strings.IndexByte(s[first+1:], '.'); second >= 0 {
			s = s[:first+1+second]
		}
	}
	s = strings.TrimSuffix(s, ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CalculateExpiration returns base shifted by the parsed duration. A zero
// base is treated as the current time.
func CalculateExpiration(text string, base time.Time) time.Time {
	if base.IsZero() {
		base = time.Now()
	}
	return base.Add(ParseDuration(text)).UTC()
}

// ParseRetentionPeriod parses a retention string of the form <n>d, <n>w,
// <n>m (30 days) or <n>y (365 days).
func ParseRetentionPeriod(text string) (time.Duration, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	match := retentionFormat.FindStringSubmatch(text)
	if match == nil {
		logger.Log().WithField("value", SanitizeForLog(text)).
			Warn("Invalid retention period format. Expected <number><d|w|m|y>, retention disabled")
		return 0, false
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		logger.Log().WithError(err).Warn("Retention period out of range, retention disabled")
		return 0, false
	}

	return time.Duration(n) * retentionUnits[strings.ToLower(match[2])], true
}

// CalculateRetentionCutoff returns the instant before which local rows are
// considered expired, or false when retention is unset or invalid.
func CalculateRetentionCutoff(text string) (time.Time, bool) {
	period, ok := ParseRetentionPeriod(text)
	if !ok {
		return time.Time{}, false
	}
	return time.Now().UTC().Add(-period), true
}
