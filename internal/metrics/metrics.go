package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by the sync engine and the upstream client.
const (
	SyncKindFull  = "backfill"
	SyncKindDelta = "delta"

	ResultOK    = "ok"
	ResultError = "error"
)

var (
	syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cwu_sync_runs_total",
		Help: "Total number of cache synchronization runs by kind and result",
	}, []string{"kind", "result"})
	recordsImportedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwu_records_imported_total",
		Help: "Total number of alert records upserted into the local cache",
	})
	decisionsRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwu_decisions_refreshed_total",
		Help: "Total number of decision rows whose expiry was refreshed in place",
	})
	recordsEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwu_records_evicted_total",
		Help: "Total number of rows removed by lookback-window eviction",
	})
	upstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cwu_upstream_requests_total",
		Help: "Total number of upstream LAPI requests by result",
	}, []string{"result"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(syncRunsTotal, recordsImportedTotal, decisionsRefreshedTotal, recordsEvictedTotal, upstreamRequestsTotal)
}

// IncSyncRun counts one finished sync run ("backfill"/"delta", "ok"/"error").
func IncSyncRun(kind, result string) { syncRunsTotal.WithLabelValues(kind, result).Inc() }

// AddImported counts alert records written by backfill or delta upserts.
func AddImported(n int) { recordsImportedTotal.Add(float64(n)) }

// AddRefreshed counts update-only decision refreshes.
func AddRefreshed(n int) { decisionsRefreshedTotal.Add(float64(n)) }

// AddEvicted counts rows removed by the eviction pass.
func AddEvicted(n int) { recordsEvictedTotal.Add(float64(n)) }

// IncUpstreamRequest counts one LAPI round-trip ("ok"/"error"/"auth_error").
func IncUpstreamRequest(result string) { upstreamRequestsTotal.WithLabelValues(result).Inc() }
