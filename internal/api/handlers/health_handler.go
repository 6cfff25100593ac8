package handlers

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/version"
)

// getLocalIP returns the non-loopback local IP of the host
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		// check the address type and if it is not a loopback then return it
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}

// HealthHandler responds with service metadata plus cache and upstream
// readiness for uptime checks. It always answers 200; a stale cache or
// unreachable upstream is visible in the body, not the status code.
func HealthHandler(engine *cache.Engine, client *lapi.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := engine.State(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"service":           version.Name,
			"version":           version.Version,
			"git_commit":        version.GitCommit,
			"build_time":        version.BuildTime,
			"internal_ip":       getLocalIP(),
			"cache_initialized": st.Initialized,
			"lapi_available":    client.Status().Available,
		})
	}
}
