// Package sla computes service-level status for queue items. Everything here
// is pure: callers supply the clock.
package sla

import (
	"time"

	"moderation-service/internal/models"
)

// Status is the SLA standing of an item at a given instant.
type Status string

const (
	StatusOnTime  Status = "on_time"
	StatusWarning Status = "warning"
	StatusOverdue Status = "overdue"
)

// DefaultWarningThreshold is used when a Calculator has no threshold configured.
const DefaultWarningThreshold = 4 * time.Hour

var defaultHours = map[models.Priority]int{
	models.PriorityUrgent: 4,
	models.PriorityHigh:   12,
	models.PriorityNormal: 24,
	models.PriorityLow:    48,
}

// Calculator derives deadlines and statuses.
type Calculator struct {
	WarningThreshold time.Duration
	HoursByPriority  map[models.Priority]int
}

// NewCalculator builds a calculator. Missing priorities in hours fall back to
// the built-in defaults.
func NewCalculator(threshold time.Duration, hours map[models.Priority]int) Calculator {
	if threshold <= 0 {
		threshold = DefaultWarningThreshold
	}
	merged := make(map[models.Priority]int, len(defaultHours))
	for p, h := range defaultHours {
		merged[p] = h
	}
	for p, h := range hours {
		if h > 0 {
			merged[p] = h
		}
	}
	return Calculator{WarningThreshold: threshold, HoursByPriority: merged}
}

// Status classifies deadline relative to now.
func (c Calculator) Status(deadline, now time.Time) Status {
	if now.After(deadline) {
		return StatusOverdue
	}
	threshold := c.WarningThreshold
	if threshold <= 0 {
		threshold = DefaultWarningThreshold
	}
	if remaining := deadline.Sub(now); remaining > 0 && remaining <= threshold {
		return StatusWarning
	}
	return StatusOnTime
}

// Deadline returns submittedAt + hours.
func (c Calculator) Deadline(submittedAt time.Time, hours int) time.Time {
	return submittedAt.Add(time.Duration(hours) * time.Hour)
}

// HoursFor returns the default SLA window for a priority.
func (c Calculator) HoursFor(p models.Priority) int {
	if h, ok := c.HoursByPriority[p]; ok && h > 0 {
		return h
	}
	if h, ok := defaultHours[p]; ok {
		return h
	}
	return defaultHours[models.PriorityNormal]
}

// Rank orders statuses by urgency: overdue 0, warning 1, on_time 2.
func Rank(s Status) int {
	switch s {
	case StatusOverdue:
		return 0
	case StatusWarning:
		return 1
	}
	return 2
}
