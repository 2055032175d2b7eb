package formulas

// MaxDrawdown is the largest peak-to-trough decline over a price or
// cumulative-value series, expressed as a negative ratio (-0.20 = a 20%
// decline). A monotonically increasing series yields 0.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDD := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// CurrentDrawdown is the decline of the final value from the running peak,
// expressed as a negative ratio. Zero when the series ends at its peak.
func CurrentDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return 0
	}
	return (values[len(values)-1] - peak) / peak
}
