// Package lifecycle holds process-wide serving state read by the health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// shutdownAt is the unix-nano time draining began; zero while serving.
var shutdownAt atomic.Int64

// SetShuttingDown marks the process as draining (true) or serving (false).
// The first transition to draining stamps the start time.
func SetShuttingDown(v bool) {
	if !v {
		shutdownAt.Store(0)
		return
	}
	shutdownAt.CompareAndSwap(0, time.Now().UnixNano())
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shutdownAt.Load() != 0
}

// DrainingFor returns how long the process has been draining, or zero while serving.
func DrainingFor() time.Duration {
	at := shutdownAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}
