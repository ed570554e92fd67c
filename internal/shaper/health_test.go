package shaper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wanemu/internal/models"
)

func f(v float64) *float64 { return &v }

func TestHealthScoreClean(t *testing.T) {
	score, label := HealthScore(models.ImpairmentState{})
	assert.Equal(t, 100, score)
	assert.Equal(t, "good", label)

	score, label = HealthScore(models.ImpairmentState{Kind: "fq_codel"})
	assert.Equal(t, 100, score)
	assert.Equal(t, "good", label)
}

func TestHealthScoreDegrades(t *testing.T) {
	score, label := HealthScore(models.ImpairmentState{
		Kind:    "netem",
		DelayMs: f(30),
	})
	assert.Equal(t, 90, score)
	assert.Equal(t, "good", label)

	score, label = HealthScore(models.ImpairmentState{
		Kind:     "netem",
		DelayMs:  f(300),
		JitterMs: f(100),
		LossPct:  f(5),
	})
	// Delay and jitter capped at -25/-15, loss at -25 of its -40 cap.
	assert.Equal(t, 35, score)
	assert.Equal(t, "bad", label)
}

func TestHealthScoreRateBuckets(t *testing.T) {
	for _, tc := range []struct {
		rate  float64
		score int
	}{
		{0.5, 80},
		{2, 85},
		{10, 95},
		{50, 100},
	} {
		score, _ := HealthScore(models.ImpairmentState{Kind: "netem", RateMbit: f(tc.rate)})
		assert.Equal(t, tc.score, score, "rate %v", tc.rate)
	}
}

func TestHealthScoreFloorsAtZero(t *testing.T) {
	score, label := HealthScore(models.ImpairmentState{
		Kind:     "netem",
		DelayMs:  f(1000),
		JitterMs: f(1000),
		LossPct:  f(100),
		RateMbit: f(0.1),
	})
	assert.Equal(t, 0, score)
	assert.Equal(t, "dead", label)
}
