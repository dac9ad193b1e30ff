// Package harmonizer combines wearable biometrics with the cognitive state
// and recommends interventions: rest on a short night, a breathing exercise
// when stressed and frustrated, a break when HRV drops.
package harmonizer

import (
	"fmt"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
)

// Thresholds are the biometric cut-offs.
type Thresholds struct {
	HeartRate      float64 // bpm above which heart rate reads as stress
	LowHRV         float64 // ms below which HRV reads as stress
	PoorSleepHours float64
}

// DefaultThresholds returns 70 bpm, 30 ms and 5 hours.
func DefaultThresholds() Thresholds {
	return Thresholds{HeartRate: 70, LowHRV: 30, PoorSleepHours: 5.0}
}

// Reading is one biometric sample. Zero means "not measured".
type Reading struct {
	HeartRate  float64   `json:"heart_rate"`
	HRV        float64   `json:"hrv"`
	SleepHours float64   `json:"sleep_quality"`
	Timestamp  time.Time `json:"timestamp"`
}

// StressLevel scores a reading from 0 to 100. Each measured signal
// contributes a factor (heart rate and HRV up to 0.4, sleep up to 0.3) and
// the score is their sum relative to the largest sum those signals allow.
func StressLevel(r Reading, t Thresholds) int {
	var sum, ceiling float64

	if r.HeartRate > 0 {
		ceiling += 0.4
		switch {
		case r.HeartRate > t.HeartRate:
			sum += 0.4
		case r.HeartRate > 70:
			sum += 0.2
		}
	}
	if r.HRV > 0 {
		ceiling += 0.4
		switch {
		case r.HRV < t.LowHRV:
			sum += 0.4
		case r.HRV < 50:
			sum += 0.2
		}
	}
	if r.SleepHours > 0 {
		ceiling += 0.3
		switch {
		case r.SleepHours < t.PoorSleepHours:
			sum += 0.3
		case r.SleepHours < 6.5:
			sum += 0.15
		}
	}

	if ceiling == 0 {
		return 0
	}
	return int(sum / ceiling * 100)
}

// Recommendation kinds.
const (
	KindLowEnergy     = "low_energy_day"
	KindHighStress    = "high_stress_intervention"
	KindStressWarning = "stress_warning"
)

// Recommendation is an intervention for the user.
type Recommendation struct {
	Kind             string   `json:"type"`
	Message          string   `json:"message"`
	Action           string   `json:"recommendation"`
	Duration         int      `json:"duration,omitempty"` // seconds
	AlternativeTasks []string `json:"alternative_tasks,omitempty"`
}

// EventType is the harmonizer_events type the recommendation is stored as.
func (r Recommendation) EventType() string {
	switch r.Kind {
	case KindHighStress:
		return "breathing_exercise"
	case KindStressWarning:
		return "break_suggestion"
	default:
		return r.Kind
	}
}

// Analyze returns the intervention for the combined bio-cognitive state, or
// nil when none is needed.
func Analyze(r Reading, stress int, state cognition.State, t Thresholds) *Recommendation {
	if r.SleepHours > 0 && r.SleepHours < t.PoorSleepHours {
		msg := fmt.Sprintf("You only got %.1f hours of sleep. Your cognitive resources are limited today.", r.SleepHours)
		return &Recommendation{
			Kind:             KindLowEnergy,
			Message:          msg,
			Action:           "postpone_complex_tasks",
			AlternativeTasks: []string{"refactoring", "documentation", "bug_fixes"},
		}
	}
	if stress > 70 && state == cognition.StateFrustrated {
		return &Recommendation{
			Kind:     KindHighStress,
			Message:  "Your physiological stress is high. Let's regulate.",
			Action:   "breathing_exercise",
			Duration: 60,
		}
	}
	if stress > 50 && r.HRV > 0 && r.HRV < 40 {
		return &Recommendation{
			Kind:     KindStressWarning,
			Message:  "Your HRV is low. Consider taking a short break.",
			Action:   "suggest_break",
			Duration: 300,
		}
	}
	return nil
}

// DailyRecommendation is the one-line advice of the daily summary.
func DailyRecommendation(r Reading, stress int) string {
	switch {
	case r.SleepHours > 0 && r.SleepHours < 5:
		return "Prioritize rest today. Focus on low-cognitive-load tasks."
	case stress > 60:
		return "Stress levels elevated. Take regular breaks and practice breathing exercises."
	case r.HRV > 60:
		return "Great recovery! You're in optimal condition for complex problem-solving."
	default:
		return "Balanced state. Maintain your current rhythm."
	}
}

// Summary is a snapshot of the user's day.
type Summary struct {
	UserID           string          `json:"user_id"`
	Date             string          `json:"date"`
	SleepQuality     float64         `json:"sleep_quality"`
	AverageHRV       float64         `json:"average_hrv"`
	AverageHeartRate float64         `json:"average_heart_rate"`
	StressLevel      int             `json:"stress_level"`
	CognitiveState   cognition.State `json:"cognitive_state"`
	Recommendation   string          `json:"recommendation"`
}

// DailySummary builds the summary for the given readings of one day. Sleep
// is taken from the latest reading that has it; HRV and heart rate are
// averaged over the readings that carry them.
func DailySummary(userID string, day time.Time, readings []Reading, state cognition.State, t Thresholds) Summary {
	s := Summary{
		UserID:         userID,
		Date:           day.Format("2006-01-02"),
		CognitiveState: state,
	}

	var hrvSum, hrSum float64
	var hrvN, hrN int
	var sleepAt time.Time
	for _, r := range readings {
		if r.HRV > 0 {
			hrvSum += r.HRV
			hrvN++
		}
		if r.HeartRate > 0 {
			hrSum += r.HeartRate
			hrN++
		}
		if r.SleepHours > 0 && !r.Timestamp.Before(sleepAt) {
			s.SleepQuality = r.SleepHours
			sleepAt = r.Timestamp
		}
	}
	if hrvN > 0 {
		s.AverageHRV = hrvSum / float64(hrvN)
	}
	if hrN > 0 {
		s.AverageHeartRate = hrSum / float64(hrN)
	}

	avg := Reading{HeartRate: s.AverageHeartRate, HRV: s.AverageHRV, SleepHours: s.SleepQuality}
	s.StressLevel = StressLevel(avg, t)
	s.Recommendation = DailyRecommendation(avg, s.StressLevel)
	return s
}
