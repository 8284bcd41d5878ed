package deviation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	// ValuePrecision is the number of decimals measurements are compared at
	ValuePrecision = 3
	// DeltaPrecision is the number of decimals of the reported percentage change
	DeltaPrecision = 2
)

type measurementsPage struct {
	Results []Measurement `json:"results"`
}

// Round formats v as fixed-point with the given number of decimals and parses it back.
// Comparisons are made on the formatted value, not on a binary rounding of v.
func Round(v float64, precision int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// ParseThreshold parses a percentage threshold, defaulting to 0 when s is empty.
func ParseThreshold(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}

	t, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("threshold %q is not a number", s)
	}
	return t, nil
}

// DecodeSeries reads the measurement series out of a measurements list payload.
func DecodeSeries(raw []byte) ([]Measurement, error) {
	var page measurementsPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &DecodeError{Err: err, Body: string(raw)}
	}
	return page.Results, nil
}

// Evaluate compares the last two measurements of series and reports a change when the
// percentage delta is strictly greater than threshold.
func Evaluate(series []Measurement, threshold float64) Verdict {
	if len(series) < 2 {
		return Verdict{}
	}

	prev := series[len(series)-2]
	curr := series[len(series)-1]

	previous := Round(prev.Value, ValuePrecision)
	current := Round(curr.Value, ValuePrecision)
	if previous == current {
		return Verdict{}
	}

	// a zero baseline has no percentage change
	if previous == 0 {
		return Verdict{}
	}

	delta := Round(math.Abs(100*(current-previous)/previous), DeltaPrecision)
	// a NaN threshold never reports a change
	if !(delta > threshold) {
		return Verdict{}
	}

	units := curr.Unit
	changeCount := 0
	v := Verdict{
		Changed:     true,
		Current:     &current,
		Previous:    &previous,
		DeltaPct:    &delta,
		Units:       &units,
		ChangeCount: &changeCount,
	}

	if len(curr.ChangedPackages) > 0 {
		changeCount = len(curr.ChangedPackages)
		v.ChangedPackages = curr.ChangedPackages
	}

	return v
}
