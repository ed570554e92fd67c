package shaper

import (
	"math"

	"wanemu/internal/models"
)

// HealthScore condenses an impairment state into a rough 0-100 score and
// a label for the UI. It is a presentation helper over the kernel
// read-back, not a measurement.
func HealthScore(st models.ImpairmentState) (int, string) {
	score := 100.0
	if st.IsNetem() {
		if st.DelayMs != nil {
			score -= math.Min(*st.DelayMs/3.0, 25.0)
		}
		if st.JitterMs != nil {
			score -= math.Min(*st.JitterMs/5.0, 15.0)
		}
		if st.LossPct != nil {
			score -= math.Min(*st.LossPct*5.0, 40.0)
		}
		if st.RateMbit != nil {
			switch r := *st.RateMbit; {
			case r < 1:
				score -= 20.0
			case r < 5:
				score -= 15.0
			case r < 20:
				score -= 5.0
			}
		}
	}
	if score < 0 {
		score = 0
	}

	label := "dead"
	switch {
	case score >= 80:
		label = "good"
	case score >= 50:
		label = "degraded"
	case score >= 20:
		label = "bad"
	}
	return int(math.Round(score)), label
}
