package simdriver

import "math"

// SweepSpec describes an arithmetic sweep over a channel parameter:
// start (inclusive), stop (exclusive), and a strictly positive step.
type SweepSpec struct {
	Start float64
	Stop  float64
	Step  float64
}

// Points expands the sweep into its strictly increasing parameter
// sequence. len(Points()) == ceil((Stop-Start)/Step).
func (s SweepSpec) Points() []float64 {
	if s.Step <= 0 || s.Stop <= s.Start {
		return nil
	}
	count := int(math.Ceil((s.Stop - s.Start) / s.Step))
	points := make([]float64, count)
	for i := 0; i < count; i++ {
		points[i] = s.Start + float64(i)*s.Step
	}
	return points
}
