// Package policy holds the pure scheduling and direction rules shared by the planner and the reconciler.
package policy

import (
	"math"
	"time"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

const (
	// DefaultMaxDelaySeconds replaces missing or non-positive delays.
	DefaultMaxDelaySeconds = 120
	// MinDelaySeconds is the lower clamp of max_delay_seconds.
	MinDelaySeconds = 3
	// MaxDelaySeconds is the upper clamp of max_delay_seconds.
	MaxDelaySeconds = 3600
	// FastLaneMaxDelay is the largest delay still scheduled on the fast lane.
	FastLaneMaxDelay = 20

	// PriorityFast is the queue priority of fast lane jobs.
	PriorityFast = 100
	// PriorityNormal is the queue priority of normal lane jobs.
	PriorityNormal = 20

	fastDebounce      = 1500 * time.Millisecond
	normalDebounceMin = 2000.0
	normalDebounceMax = 25000.0
	normalSpanStart   = 21.0
	normalSpanLen     = 39.0
)

// NormalizeDelay clamps max_delay_seconds to [3, 3600]; non-positive means 120.
func NormalizeDelay(seconds int) int {
	if seconds <= 0 {
		return DefaultMaxDelaySeconds
	}

	return min(MaxDelaySeconds, max(MinDelaySeconds, seconds))
}

// LaneFor picks the lane of a normalized delay.
func LaneFor(delay int) models.Lane {
	if delay <= FastLaneMaxDelay {
		return models.LaneFast
	}

	return models.LaneNormal
}

// PriorityFor returns the queue priority of a lane.
func PriorityFor(lane models.Lane) int {
	if lane == models.LaneFast {
		return PriorityFast
	}

	return PriorityNormal
}

// Debounce is the wait before a planned job becomes due.
// Fast lane waits 1.5s; normal lane grows linearly from 2s at 21s to 25s at 60s and stays there.
func Debounce(delay int) time.Duration {
	if LaneFor(delay) == models.LaneFast {
		return fastDebounce
	}

	ratio := (float64(delay) - normalSpanStart) / normalSpanLen
	ms := math.Round(normalDebounceMin + ratio*(normalDebounceMax-normalDebounceMin))
	ms = min(normalDebounceMax, max(normalDebounceMin, ms))

	return time.Duration(ms) * time.Millisecond
}

// Schedule bundles lane, priority and debounce for a raw max_delay_seconds.
type Schedule struct {
	Delay    int
	Lane     models.Lane
	Priority int
	Debounce time.Duration
}

// ScheduleFor normalizes the delay and derives lane, priority and debounce.
func ScheduleFor(maxDelaySeconds int) Schedule {
	d := NormalizeDelay(maxDelaySeconds)
	lane := LaneFor(d)

	return Schedule{Delay: d, Lane: lane, Priority: PriorityFor(lane), Debounce: Debounce(d)}
}

// ShouldPropagate reports whether a live change seen on one side of a mapping
// travels to the other side.
func ShouldPropagate(mode models.SyncMode, fromSource bool) bool {
	switch mode {
	case models.SyncBidirectional:
		return true
	case models.SyncSourceToTarget:
		return fromSource
	case models.SyncTargetToSource:
		return !fromSource
	default:
		return false
	}
}

// Direction is the side reconciliation copies from.
type Direction int

const (
	// SourceToTarget copies source role possession onto the target.
	SourceToTarget Direction = iota + 1
	// TargetToSource copies target role possession onto the source.
	TargetToSource
)

// ReconcileDirection decides the copy direction of a mapping during reconciliation.
// ok is false when reconciliation must leave the mapping alone.
// manual_only and bidirectional_latest are skipped here although live events still flow both ways.
func ReconcileDirection(mode models.SyncMode, p models.ConflictPolicy) (Direction, bool) {
	switch mode {
	case models.SyncSourceToTarget:
		return SourceToTarget, true
	case models.SyncTargetToSource:
		return TargetToSource, true
	case models.SyncBidirectional:
		switch p {
		case models.PolicyManualOnly, models.PolicyBidirectionalLatest:
			return 0, false
		default:
			return SourceToTarget, true
		}
	default:
		return 0, false
	}
}
