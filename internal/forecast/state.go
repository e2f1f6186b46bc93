package forecast

// State is a self-referential linear extrapolation for one metric. Every
// Step refits ordinary least squares over all points so far, including the
// ones it produced itself, and appends the new prediction.
type State struct {
	x       []float64
	y       []float64
	counter float64
	clamp   bool
}

// stepFrom and stepTo index the fitted values whose difference is the
// per-step increment. They stay fixed as the series grows.
const (
	stepFrom = 5
	stepTo   = 6
)

// NewState seeds a state with values at x = 1..len(values). With clamp set,
// negative predictions are floored at zero before being fed back. Callers
// must pass at least stepTo+1 values.
func NewState(values []float64, clamp bool) *State {
	s := &State{
		x:       make([]float64, len(values)),
		y:       make([]float64, len(values)),
		counter: float64(len(values) + 1),
		clamp:   clamp,
	}
	for i, v := range values {
		s.x[i] = float64(i + 1)
		s.y[i] = v
	}
	return s
}

// Step predicts the next value and appends it to the series.
func (s *State) Step() float64 {
	intercept, slope := fitOLS(s.x, s.y)
	fitted := func(i int) float64 { return intercept + slope*s.x[i] }

	next := fitted(len(s.x)-1) + (fitted(stepTo) - fitted(stepFrom))
	if s.clamp && next < 0 {
		next = 0
	}

	s.counter++
	s.x = append(s.x, s.counter)
	s.y = append(s.y, next)
	return next
}

// fitOLS returns the closed-form least squares line y = a + b*x.
func fitOLS(x, y []float64) (a, b float64) {
	n := float64(len(x))
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxy, sxx float64
	for i := range x {
		dx := x[i] - meanX
		sxy += dx * (y[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return meanY, 0
	}
	b = sxy / sxx
	return meanY - b*meanX, b
}
