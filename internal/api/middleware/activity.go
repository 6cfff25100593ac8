package middleware

import (
    "net/http"

    "github.com/gin-gonic/gin"
)

// ActivitySink receives read-activity observations.
type ActivitySink interface {
    RecordActivity()
}

// ActivityRecorder notes data-plane reads so the cache engine can adapt
// its refresh cadence. Only safe methods count; a mutation is not a sign
// that someone is watching the dashboard.
func ActivityRecorder(sink ActivitySink) gin.HandlerFunc {
    return func(c *gin.Context) {
        if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
            sink.RecordActivity()
        }
        c.Next()
    }
}
