// Package metricdeviationproxy serves metric deviation verdicts computed from the SQuaSH
// dashboard on behalf of Basic-Auth callers.
//
// A request such as
//
//	GET /metricdeviation/validate_drp.AM1/5
//
// signs in to the dashboard with the caller's credentials, fetches the last page of
// measurements for the configured dataset and reports whether the latest value moved by more
// than 5 percent from the previous one:
//
//	{
//	    "changed": true,
//	    "current": 12,
//	    "previous": 10,
//	    "changecount": 1,
//	    "delta_pct": 20,
//	    "units": "milliarcsecond",
//	    "changed_packages": ["afw"],
//	    "graph": "https://squash.lsst.codes/dash/AM1"
//	}
//
// The upstream session is shared by every request and re-established once when the dashboard
// rejects it. GET /describemetrics lists every metric with its description.
package main // import "github.com/kevindweb/metricdeviation-proxy"
