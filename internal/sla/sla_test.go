package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"moderation-service/internal/models"
)

func TestStatus(t *testing.T) {
	calc := NewCalculator(4*time.Hour, nil)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	t.Run("overdue once the deadline has passed", func(t *testing.T) {
		assert.Equal(t, StatusOverdue, calc.Status(now.Add(-2*time.Hour), now))
		assert.Equal(t, StatusOverdue, calc.Status(now.Add(-time.Nanosecond), now))
	})

	t.Run("warning inside the threshold", func(t *testing.T) {
		assert.Equal(t, StatusWarning, calc.Status(now.Add(time.Hour), now))
		assert.Equal(t, StatusWarning, calc.Status(now.Add(4*time.Hour), now))
	})

	t.Run("deadline reached exactly is still on time", func(t *testing.T) {
		assert.Equal(t, StatusOnTime, calc.Status(now, now))
	})

	t.Run("on time beyond the threshold", func(t *testing.T) {
		assert.Equal(t, StatusOnTime, calc.Status(now.Add(4*time.Hour+time.Second), now))
		assert.Equal(t, StatusOnTime, calc.Status(now.Add(10*time.Hour), now))
	})
}

func TestZeroCalculatorUsesDefaultThreshold(t *testing.T) {
	var calc Calculator
	now := time.Now().UTC()
	assert.Equal(t, StatusWarning, calc.Status(now.Add(3*time.Hour), now))
	assert.Equal(t, StatusOnTime, calc.Status(now.Add(5*time.Hour), now))
}

func TestDeadlineAndHours(t *testing.T) {
	calc := NewCalculator(0, map[models.Priority]int{models.PriorityHigh: 6})
	submitted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, submitted.Add(24*time.Hour), calc.Deadline(submitted, 24))
	assert.Equal(t, 6, calc.HoursFor(models.PriorityHigh))
	assert.Equal(t, 4, calc.HoursFor(models.PriorityUrgent))
	assert.Equal(t, 48, calc.HoursFor(models.PriorityLow))
	assert.Equal(t, 24, calc.HoursFor(models.Priority("bogus")))
}

func TestRank(t *testing.T) {
	assert.Less(t, Rank(StatusOverdue), Rank(StatusWarning))
	assert.Less(t, Rank(StatusWarning), Rank(StatusOnTime))
}
