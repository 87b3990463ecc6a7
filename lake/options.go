package lake

import (
	"cmp"
	"fmt"
	"log/slog"
	"strings"

	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/logstore"
	"go.opentelemetry.io/otel/trace"
)

// RebuildPolicy decides what Rebuild does when a log file is damaged before
// its end. A file that is merely cut short at the end is always tolerated.
type RebuildPolicy int

const (
	// RebuildAbort fails the rebuild with the *core.CorruptRecordError of the
	// lowest damaged file and keeps the previous index.
	RebuildAbort RebuildPolicy = iota
	// RebuildSkipFile indexes the records before the damage, reports the file
	// in RebuildReport.CorruptFiles and carries on with the next file.
	RebuildSkipFile
)

func (p RebuildPolicy) String() string {
	switch p {
	case RebuildAbort:
		return "abort"
	case RebuildSkipFile:
		return "skip_file"
	default:
		return fmt.Sprintf("RebuildPolicy(%d)", int(p))
	}
}

// ParseRebuildPolicy maps a configuration string to a RebuildPolicy. An
// empty string selects RebuildAbort.
func ParseRebuildPolicy(s string) (RebuildPolicy, error) {
	switch strings.ToLower(s) {
	case "", "abort":
		return RebuildAbort, nil
	case "skip_file", "skip":
		return RebuildSkipFile, nil
	default:
		return RebuildAbort, &core.UnsupportedTypeError{Message: "rebuild policy " + s}
	}
}

// DefaultRebuildConcurrency is the number of files scanned in parallel by
// Rebuild when Options.RebuildConcurrency is not set.
const DefaultRebuildConcurrency = 4

// Options configures a Lake.
type Options[K cmp.Ordered, V core.Keyed[K]] struct {
	// Dir is the lake directory. It is created if missing.
	Dir string
	// Codec encodes values into records. Required.
	Codec codec.Codec[V]

	MaxFileSize int64
	SyncMode    logstore.SyncMode

	// RebuildOnOpen populates the index from the log files during Open.
	RebuildOnOpen      bool
	RebuildPolicy      RebuildPolicy
	RebuildConcurrency int

	// ValueCacheCapacity is the number of decoded values kept in memory,
	// keyed by Location. Zero disables the cache.
	ValueCacheCapacity int

	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	// HookManager receives lake events. When nil the lake creates its own.
	HookManager hooks.HookManager
	// Metrics defaults to a private (unpublished) set.
	Metrics *Metrics
}
