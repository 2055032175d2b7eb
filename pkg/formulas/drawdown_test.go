package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxDrawdown(t *testing.T) {
	// Peak 100, trough 80: a 20% decline regardless of the later recovery.
	assert.InDelta(t, -0.20, MaxDrawdown([]float64{100, 80, 120}), 1e-9)
}

func TestMaxDrawdownMonotonicRiseIsZero(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100, 110, 125, 130}))
}

func TestMaxDrawdownPicksDeepestDecline(t *testing.T) {
	// Two declines: 100->90 (-10%) and 130->91 (-30%).
	assert.InDelta(t, -0.30, MaxDrawdown([]float64{100, 90, 130, 91, 120}), 1e-9)
}

func TestMaxDrawdownShortSeries(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100}))
}

func TestCurrentDrawdown(t *testing.T) {
	assert.InDelta(t, -0.25, CurrentDrawdown([]float64{100, 120, 90}), 1e-9)

	// Series ending at its peak has no current drawdown.
	assert.Equal(t, 0.0, CurrentDrawdown([]float64{100, 90, 110}))
}
