// Package deviation turns SQuaSH dashboard payloads into deviation verdicts and metric descriptions.
// Nothing in this package performs I/O.
package deviation

// Measurement is a single entry of a metric's measurement series.
type Measurement struct {
	Value           float64  `json:"value"`
	Unit            string   `json:"unit,omitempty"`
	ChangedPackages []string `json:"changed_packages,omitempty"`
}

// Verdict reports whether the latest measurement of a metric deviates from the previous one.
// An unchanged verdict marshals as exactly {"changed":false}.
type Verdict struct {
	Changed         bool     `json:"changed"`
	Current         *float64 `json:"current,omitempty"`
	Previous        *float64 `json:"previous,omitempty"`
	ChangeCount     *int     `json:"changecount,omitempty"`
	DeltaPct        *float64 `json:"delta_pct,omitempty"`
	Units           *string  `json:"units,omitempty"`
	ChangedPackages []string `json:"changed_packages,omitempty"`
}

// Report is the verdict returned to callers, enriched with the metric's monitoring graph.
// Graph is always serialized and is null when the dashboard has no monitor URL for the metric.
type Report struct {
	Verdict
	Graph *string `json:"graph"`
}

// DecodeError is returned when an upstream payload is not the JSON document we expect.
type DecodeError struct {
	Err  error
	Body string
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "could not decode JSON result"
	}
	return "could not decode JSON result: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
