package middleware

import (
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// ConnectionTracker counts in-flight work using atomic operations.
type ConnectionTracker struct {
	count atomic.Int64
}

// Increment atomically increases the count by 1.
func (ct *ConnectionTracker) Increment() {
	ct.count.Add(1)
}

// Decrement atomically decreases the count by 1.
func (ct *ConnectionTracker) Decrement() {
	ct.count.Add(-1)
}

// Count returns the current value.
func (ct *ConnectionTracker) Count() int64 {
	return ct.count.Load()
}

var (
	// ActiveConnections counts HTTP requests currently being served.
	ActiveConnections = &ConnectionTracker{}
	// ActiveStreams counts translation streams currently open. It is reported by /healthz and
	// logged on shutdown.
	ActiveStreams = &ConnectionTracker{}
)

// ConnectionTrackerMiddleware returns a Gin middleware that tracks active HTTP requests.
func ConnectionTrackerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ActiveConnections.Increment()
		defer ActiveConnections.Decrement()
		c.Next()
	}
}
