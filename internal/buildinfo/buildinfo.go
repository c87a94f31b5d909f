// Package buildinfo carries the stamps linked into the quicklabel
// binary, surfaced by the workstation status endpoint.
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitTime string // last git commit time (last code edit)
	CommitHash string // short git commit hash
)

// startTime is recorded when the workstation process starts.
var startTime = time.Now().UTC()

// StartTime is the process start in RFC3339, as reported by the status
// endpoint.
var StartTime = startTime.Format(time.RFC3339)

// Uptime reports how long the workstation has been running.
func Uptime() time.Duration {
	return time.Since(startTime).Round(time.Second)
}
