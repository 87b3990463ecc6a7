package lake

import (
	"expvar"
	"sync"

	"github.com/caio/go-tdigest/v4"
)

// Metrics holds the expvar variables of a Lake.
type Metrics struct {
	PublishedGlobally bool

	InsertTotal       *expvar.Int
	InsertErrorsTotal *expvar.Int
	LookupTotal       *expvar.Int
	LookupErrorsTotal *expvar.Int
	DeleteTotal       *expvar.Int
	KeysCreatedTotal  *expvar.Int

	BytesWrittenTotal   *expvar.Int
	RecordsWrittenTotal *expvar.Int
	RecordsReadTotal    *expvar.Int

	RebuildTotal              *expvar.Int
	RebuildErrorsTotal        *expvar.Int
	RebuildRecordsTotal       *expvar.Int
	RebuildTruncatedFiles     *expvar.Int
	RebuildCorruptFilesTotal  *expvar.Int
	RebuildLastDurationMillis *expvar.Int

	ValueCacheHits   *expvar.Int
	ValueCacheMisses *expvar.Int

	InsertLatencyHist  *expvar.Map
	ReadLatencyHist    *expvar.Map
	RebuildLatencyHist *expvar.Map

	readDigest   *latencyDigest
	insertDigest *latencyDigest
}

// NewMetrics creates the metric set. With publishGlobally the variables are
// registered in the global expvar namespace under prefix; otherwise they are
// private to the lake.
func NewMetrics(publishGlobally bool, prefix string) *Metrics {
	newIntFunc := func(_ string) *expvar.Int { return new(expvar.Int) }
	newMapFunc := func(_ string) *expvar.Map {
		m := new(expvar.Map)
		m.Init()
		return m
	}
	if publishGlobally {
		newIntFunc = publishExpvarInt
		newMapFunc = publishExpvarMap
	}

	m := &Metrics{
		PublishedGlobally: publishGlobally,

		InsertTotal:       newIntFunc(prefix + "inserts_total"),
		InsertErrorsTotal: newIntFunc(prefix + "insert_errors_total"),
		LookupTotal:       newIntFunc(prefix + "lookups_total"),
		LookupErrorsTotal: newIntFunc(prefix + "lookup_errors_total"),
		DeleteTotal:       newIntFunc(prefix + "deletes_total"),
		KeysCreatedTotal:  newIntFunc(prefix + "keys_created_total"),

		BytesWrittenTotal:   newIntFunc(prefix + "bytes_written_total"),
		RecordsWrittenTotal: newIntFunc(prefix + "records_written_total"),
		RecordsReadTotal:    newIntFunc(prefix + "records_read_total"),

		RebuildTotal:              newIntFunc(prefix + "rebuilds_total"),
		RebuildErrorsTotal:        newIntFunc(prefix + "rebuild_errors_total"),
		RebuildRecordsTotal:       newIntFunc(prefix + "rebuild_records_total"),
		RebuildTruncatedFiles:     newIntFunc(prefix + "rebuild_truncated_files_total"),
		RebuildCorruptFilesTotal:  newIntFunc(prefix + "rebuild_corrupt_files_total"),
		RebuildLastDurationMillis: newIntFunc(prefix + "rebuild_last_duration_ms"),

		ValueCacheHits:   newIntFunc(prefix + "value_cache_hits"),
		ValueCacheMisses: newIntFunc(prefix + "value_cache_misses"),

		InsertLatencyHist:  newMapFunc(prefix + "insert_latency_seconds"),
		ReadLatencyHist:    newMapFunc(prefix + "read_latency_seconds"),
		RebuildLatencyHist: newMapFunc(prefix + "rebuild_latency_seconds"),

		readDigest:   newLatencyDigest(),
		insertDigest: newLatencyDigest(),
	}
	for _, h := range []*expvar.Map{m.InsertLatencyHist, m.ReadLatencyHist, m.RebuildLatencyHist} {
		initHistogram(h)
	}
	if publishGlobally {
		publishExpvarFunc(prefix+"read_latency_quantiles", func() interface{} { return m.readDigest.quantiles() })
		publishExpvarFunc(prefix+"insert_latency_quantiles", func() interface{} { return m.insertDigest.quantiles() })
	}
	return m
}

// ReadLatencyQuantiles returns p50, p90, p99 and p999 of record read latency
// in seconds.
func (m *Metrics) ReadLatencyQuantiles() map[string]float64 {
	return m.readDigest.quantiles()
}

// InsertLatencyQuantiles is ReadLatencyQuantiles for inserts.
func (m *Metrics) InsertLatencyQuantiles() map[string]float64 {
	return m.insertDigest.quantiles()
}

func (m *Metrics) observeRead(seconds float64) {
	observeLatency(m.ReadLatencyHist, seconds)
	m.readDigest.add(seconds)
}

func (m *Metrics) observeInsert(seconds float64) {
	observeLatency(m.InsertLatencyHist, seconds)
	m.insertDigest.add(seconds)
}

// latencyDigest is a t-digest guarded by a mutex; tdigest.TDigest is not
// safe for concurrent use.
type latencyDigest struct {
	mu sync.Mutex
	td *tdigest.TDigest
}

func newLatencyDigest() *latencyDigest {
	td, err := tdigest.New()
	if err != nil {
		// Only invalid options make New fail.
		panic(err)
	}
	return &latencyDigest{td: td}
}

func (d *latencyDigest) add(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.td.Add(v)
}

func (d *latencyDigest) quantiles() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]float64{"count": float64(d.td.Count())}
	if d.td.Count() == 0 {
		return out
	}
	out["p50"] = d.td.Quantile(0.5)
	out["p90"] = d.td.Quantile(0.9)
	out["p99"] = d.td.Quantile(0.99)
	out["p999"] = d.td.Quantile(0.999)
	return out
}
