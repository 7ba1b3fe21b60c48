// Package contxt builds the bounded contexts used by scheduled jobs.
package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext derives a job context from parent that gives up after timeout.
// Setting CONTEXT_TEST drops the deadline so a debugger can step through a job.
func NewContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
