package economy

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNegativeInvestment = errors.New("investment cannot be negative")
	ErrExceedsOutput      = errors.New("investment exceeds output")
	ErrNotFinite          = errors.New("investment must be a finite number")
)

// Params holds the production function settings.
type Params struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Productivity   float64 `yaml:"productivity"`
	Elasticity     float64 `yaml:"elasticity"`
	Depreciation   float64 `yaml:"depreciation"`
}

// DefaultParams returns the classroom defaults.
func DefaultParams() Params {
	return Params{
		InitialCapital: 100,
		Productivity:   5,
		Elasticity:     0.3,
		Depreciation:   0.1,
	}
}

// Validate checks that the parameters describe a usable production function.
func (p Params) Validate() error {
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %v", p.InitialCapital)
	}
	if p.Productivity <= 0 {
		return fmt.Errorf("productivity must be positive, got %v", p.Productivity)
	}
	if p.Elasticity <= 0 || p.Elasticity >= 1 {
		return fmt.Errorf("elasticity must be in (0,1), got %v", p.Elasticity)
	}
	if p.Depreciation < 0 || p.Depreciation > 1 {
		return fmt.Errorf("depreciation must be in [0,1], got %v", p.Depreciation)
	}
	return nil
}

// Model maps capital to output. It holds no state beyond its parameters.
type Model struct {
	params Params
}

// NewModel creates a model for the given parameters.
func NewModel(params Params) Model {
	return Model{params: params}
}

// InitialCapital is the capital every player starts a game with.
func (m Model) InitialCapital() float64 {
	return m.params.InitialCapital
}

// Output computes Productivity * capital^Elasticity.
func (m Model) Output(capital float64) float64 {
	if capital <= 0 {
		return 0
	}
	return m.params.Productivity * math.Pow(capital, m.params.Elasticity)
}

// NextCapital applies depreciation and adds the round's investment.
func (m Model) NextCapital(capital, investment float64) float64 {
	next := capital*(1-m.params.Depreciation) + investment
	if next < 0 {
		return 0
	}
	return next
}

// Advance returns the capital and output a player ends the round with.
func (m Model) Advance(capital, investment float64) (newCapital, newOutput float64) {
	newCapital = m.NextCapital(capital, investment)
	return newCapital, m.Output(newCapital)
}

// Validate reports whether investment is acceptable against the current output.
func (m Model) Validate(investment, output float64) error {
	if math.IsNaN(investment) || math.IsInf(investment, 0) {
		return ErrNotFinite
	}
	if investment < 0 {
		return ErrNegativeInvestment
	}
	if investment > output {
		return fmt.Errorf("%w: %.2f > %.2f", ErrExceedsOutput, investment, output)
	}
	return nil
}

// Clamp forces raw into [0, output]. The second result reports whether raw was changed.
func (m Model) Clamp(raw, output float64) (float64, bool) {
	if output < 0 {
		output = 0
	}
	switch {
	case raw < 0:
		return 0, true
	case raw > output:
		return output, true
	default:
		return raw, false
	}
}
