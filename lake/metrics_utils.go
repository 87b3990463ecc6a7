package lake

import (
	"expvar"
	"fmt"
)

var latencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}

// observeLatency records the duration in the provided histogram map.
func observeLatency(histMap *expvar.Map, durationSeconds float64) {
	if histMap == nil {
		return
	}
	if countInt, ok := histMap.Get("count").(*expvar.Int); ok {
		countInt.Add(1)
	}
	if sumFloat, ok := histMap.Get("sum").(*expvar.Float); ok {
		sumFloat.Add(durationSeconds)
	}

	// Cumulative: a value counts towards every bucket it fits in.
	for _, b := range latencyBuckets {
		if durationSeconds <= b {
			if bucket, ok := histMap.Get(bucketName(b)).(*expvar.Int); ok {
				bucket.Add(1)
			}
		}
	}
	if inf, ok := histMap.Get("le_inf").(*expvar.Int); ok {
		inf.Add(1)
	}
}

func bucketName(b float64) string {
	return fmt.Sprintf("le_%.4f", b)
}

func initHistogram(m *expvar.Map) {
	m.Set("count", new(expvar.Int))
	m.Set("sum", new(expvar.Float))
	for _, b := range latencyBuckets {
		m.Set(bucketName(b), new(expvar.Int))
	}
	m.Set("le_inf", new(expvar.Int))
}

// publishExpvarInt publishes an expvar.Int, reusing (and resetting) an
// existing variable of the same name. It panics when the name is taken by a
// variable of another type.
func publishExpvarInt(name string) *expvar.Int {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewInt(name)
	}
	if iv, ok := v.(*expvar.Int); ok {
		iv.Set(0)
		return iv
	}
	panic(fmt.Sprintf("expvar: trying to publish Int %s but variable already exists with different type %T", name, v))
}

// publishExpvarMap publishes an expvar.Map or returns the existing one.
func publishExpvarMap(name string) *expvar.Map {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewMap(name)
	}
	if mv, ok := v.(*expvar.Map); ok {
		return mv
	}
	panic(fmt.Sprintf("expvar: trying to publish Map %s but variable already exists with different type %T", name, v))
}

// publishExpvarFunc publishes f unless the name is already taken. expvar
// cannot unpublish, so the first lake to publish a name keeps it.
func publishExpvarFunc(name string, f func() interface{}) {
	if expvar.Get(name) != nil {
		return
	}
	expvar.Publish(name, expvar.Func(f))
}
