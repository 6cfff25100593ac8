package middleware

import (
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/services"
)

const APIKeyHeader = "X-Api-Key"

// APIKeyAuth gates mutating endpoints behind the optional API key. While
// no key is configured the gate stays open; the default deployment is a
// single operator on a trusted network.
func APIKeyAuth(sec *services.SecurityService) gin.HandlerFunc {
    return func(c *gin.Context) {
        switch c.Request.Method {
        case http.MethodGet, http.MethodHead, http.MethodOptions:
            c.Next()
            return
        }

        if !sec.Enabled() {
            c.Next()
            return
        }

        key := c.GetHeader(APIKeyHeader)
        if key == "" {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key required"})
            return
        }
        if err := sec.VerifyAPIKey(key); err != nil {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key invalid"})
            return
        }

        c.Next()
    }
}
