// Package behavior classifies finished track histories into movement
// patterns and an overall risk level.
package behavior

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/your-org/vtrack/internal/track"
)

// Risk levels attached to finished-track events.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Behavior labels.
const (
	BehaviorNormal    = "normal"
	BehaviorLoitering = "loitering"
	BehaviorErratic   = "erratic"
	BehaviorFast      = "fast"
)

// Config tunes the pattern thresholds. All distances are in pixels of the
// source frame, speeds in pixels per second.
type Config struct {
	// LoiterMinDuration is how long a track must dwell inside LoiterRange
	// to count as loitering.
	LoiterMinDuration time.Duration
	// LoiterRange is the maximum spread of positions for a dwell.
	LoiterRange float64
	// ErraticSpeedCV flags a track whose speed coefficient of variation
	// (stddev/mean) exceeds it.
	ErraticSpeedCV float64
	// ErraticMinSamples is the minimum history length for the erratic test.
	ErraticMinSamples int
	// FastSpeed flags sustained movement above it.
	FastSpeed float64
}

// DefaultConfig returns thresholds tuned for 1080p pedestrian footage.
func DefaultConfig() Config {
	return Config{
		LoiterMinDuration: 30 * time.Second,
		LoiterRange:       80,
		ErraticSpeedCV:    1.2,
		ErraticMinSamples: 6,
		FastSpeed:         400,
	}
}

// Analyzer derives behavior labels and a risk level from track histories.
// Stateless and safe for concurrent use.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer, filling zero config fields from defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.LoiterMinDuration <= 0 {
		cfg.LoiterMinDuration = def.LoiterMinDuration
	}
	if cfg.LoiterRange <= 0 {
		cfg.LoiterRange = def.LoiterRange
	}
	if cfg.ErraticSpeedCV <= 0 {
		cfg.ErraticSpeedCV = def.ErraticSpeedCV
	}
	if cfg.ErraticMinSamples <= 0 {
		cfg.ErraticMinSamples = def.ErraticMinSamples
	}
	if cfg.FastSpeed <= 0 {
		cfg.FastSpeed = def.FastSpeed
	}
	return &Analyzer{cfg: cfg}
}

// Analyze labels one finished track and maps the label set to a risk level:
// two or more anomalous patterns rank HIGH, one ranks MEDIUM.
func (a *Analyzer) Analyze(r track.Retired) (string, []string) {
	var behaviors []string

	if a.isLoitering(r) {
		behaviors = append(behaviors, BehaviorLoitering)
	}
	if a.isErratic(r) {
		behaviors = append(behaviors, BehaviorErratic)
	}
	if r.AvgSpeed > a.cfg.FastSpeed {
		behaviors = append(behaviors, BehaviorFast)
	}

	switch len(behaviors) {
	case 0:
		return RiskLow, []string{BehaviorNormal}
	case 1:
		return RiskMedium, behaviors
	default:
		return RiskHigh, behaviors
	}
}

// isLoitering checks whether the track dwelled long enough inside a small
// spatial range.
func (a *Analyzer) isLoitering(r track.Retired) bool {
	if len(r.History) < 2 {
		return false
	}
	if r.LastSeen.Sub(r.FirstSeen) < a.cfg.LoiterMinDuration {
		return false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range r.History {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return math.Hypot(maxX-minX, maxY-minY) <= a.cfg.LoiterRange
}

// isErratic checks whether per-step speeds vary wildly relative to their
// mean, which indicates stop-and-go or zigzag movement.
func (a *Analyzer) isErratic(r track.Retired) bool {
	speeds := stepSpeeds(r.History)
	if len(speeds) < a.cfg.ErraticMinSamples {
		return false
	}
	mean, std := stat.MeanStdDev(speeds, nil)
	if mean <= 0 {
		return false
	}
	return std/mean > a.cfg.ErraticSpeedCV
}

// stepSpeeds converts a position history to per-step scalar speeds.
func stepSpeeds(history []track.Point) []float64 {
	if len(history) < 2 {
		return nil
	}
	speeds := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		dt := history[i].TS.Sub(history[i-1].TS).Seconds()
		if dt <= 0 {
			continue
		}
		d := math.Hypot(history[i].X-history[i-1].X, history[i].Y-history[i-1].Y)
		speeds = append(speeds, d/dt)
	}
	return speeds
}
