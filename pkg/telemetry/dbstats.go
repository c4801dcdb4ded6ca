package telemetry

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"anonboard/pkg/logger"
)

var (
	dbWALBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anonboard_db_wal_bytes",
		Help: "Size of the storage engine write-ahead log.",
	})
	dbDiskBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anonboard_db_disk_bytes",
		Help: "Estimated on-disk size of the database.",
	})
	dbCompactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anonboard_db_compactions_total",
		Help: "Total compactions performed by the storage engine.",
	})
)

// StartDBMonitor polls the storage engine's metrics on interval and exports
// them as gauges. Returns a cancel func.
func StartDBMonitor(ctx context.Context, metrics func() *pebble.Metrics, interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := metrics()
				if m == nil {
					continue
				}
				dbWALBytes.Set(float64(m.WAL.Size))
				dbDiskBytes.Set(float64(m.DiskSpaceUsage()))
				dbCompactions.Set(float64(m.Compact.Count))
				logger.Debug("db_stats", "wal_bytes", m.WAL.Size, "disk_bytes", m.DiskSpaceUsage())
			}
		}
	}()
	return cancel
}
