package generation

import "math"

// Sampling is the temperature/top-p pair used for one generation.
type Sampling struct {
	Temperature float64
	TopP        float64
}

var basePoints = [4]Sampling{
	{Temperature: 0.80, TopP: 0.90},
	{Temperature: 0.90, TopP: 0.95},
	{Temperature: 1.00, TopP: 1.00},
	{Temperature: 1.10, TopP: 1.00},
}

const (
	cycleNudge     = 0.05
	maxTemperature = 1.30
)

// Variation maps a generation index to sampling parameters. Indices 0-3 use the base
// points; each later cycle of four repeats them with temperature raised by cycleNudge,
// capped at maxTemperature.
func Variation(index int) Sampling {
	if index < 0 {
		index = 0
	}
	p := basePoints[index%len(basePoints)]
	cycle := index / len(basePoints)
	t := p.Temperature + float64(cycle)*cycleNudge
	if t > maxTemperature {
		t = maxTemperature
	}
	p.Temperature = math.Round(t*100) / 100
	return p
}
