package server

import (
	"expvar"

	"github.com/INLOpen/nexuslake/lake"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is what the metrics server reads from a lake.
type StatsSource interface {
	Stats() lake.Stats
	Metrics() *lake.Metrics
}

func counterFromInt(name, help string, v *expvar.Int) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
		return float64(v.Value())
	})
}

// LakeCollectors mirrors the lake's expvar counters and its Stats as
// Prometheus collectors, read on every scrape.
func LakeCollectors(src StatsSource) []prometheus.Collector {
	m := src.Metrics()
	return []prometheus.Collector{
		counterFromInt("lake_inserts_total", "Values inserted", m.InsertTotal),
		counterFromInt("lake_insert_errors_total", "Inserts that failed", m.InsertErrorsTotal),
		counterFromInt("lake_lookups_total", "Lookup and Latest calls", m.LookupTotal),
		counterFromInt("lake_lookup_errors_total", "Lookups that failed to read a record", m.LookupErrorsTotal),
		counterFromInt("lake_deletes_total", "Delete calls", m.DeleteTotal),
		counterFromInt("lake_bytes_written_total", "Bytes appended to log files", m.BytesWrittenTotal),
		counterFromInt("lake_records_read_total", "Records decoded from log files", m.RecordsReadTotal),
		counterFromInt("lake_rebuilds_total", "Index rebuilds started", m.RebuildTotal),
		counterFromInt("lake_rebuild_errors_total", "Index rebuilds that failed", m.RebuildErrorsTotal),
		counterFromInt("lake_rebuild_records_total", "Records indexed by rebuilds", m.RebuildRecordsTotal),
		counterFromInt("lake_value_cache_hits_total", "Value cache hits", m.ValueCacheHits),
		counterFromInt("lake_value_cache_misses_total", "Value cache misses", m.ValueCacheMisses),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lake_indexed_keys",
			Help: "Keys currently in the index",
		}, func() float64 { return float64(src.Stats().IndexedKeys) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lake_indexed_locations",
			Help: "Record locations currently in the index",
		}, func() float64 { return float64(src.Stats().IndexedLocations) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lake_active_file_id",
			Help: "ID of the log file receiving appends",
		}, func() float64 { return float64(src.Stats().ActiveFileID) }),
	}
}
