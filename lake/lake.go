// Package lake is a log-structured key-value store. Values are appended to
// log files in one directory; an in-memory index maps every key to the
// locations of all versions of its value, oldest first.
package lake

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/INLOpen/nexuslake/cache"
	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/keyindex"
	"github.com/INLOpen/nexuslake/logstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Lake is a log-structured key-value store bound to one directory.
type Lake[K cmp.Ordered, V core.Keyed[K]] struct {
	opts      Options[K, V]
	codec     codec.Codec[V]
	store     *logstore.Store
	index     *keyindex.Index[K]
	values    *cache.LRUCache[core.Location, V]
	sessionID uuid.UUID

	logger     *slog.Logger
	tracer     trace.Tracer
	hooks      hooks.HookManager
	ownsHooks  bool
	metrics    *Metrics
	openedTime time.Time

	// writeMu keeps append order and index order identical, and keeps
	// inserts out while a rebuild scans.
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens or creates the lake in opts.Dir. The index starts empty unless
// opts.RebuildOnOpen is set.
func Open[K cmp.Ordered, V core.Keyed[K]](opts Options[K, V]) (*Lake[K, V], error) {
	if opts.Codec == nil {
		return nil, errors.New("lake: a codec is required")
	}
	if opts.RebuildConcurrency <= 0 {
		opts.RebuildConcurrency = DefaultRebuildConcurrency
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(false, "lake_")
	}

	sessionID := uuid.New()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "Lake", "session", sessionID.String())

	l := &Lake[K, V]{
		opts:       opts,
		codec:      opts.Codec,
		index:      keyindex.New[K](),
		sessionID:  sessionID,
		logger:     logger,
		hooks:      opts.HookManager,
		metrics:    opts.Metrics,
		openedTime: time.Now(),
	}
	if l.hooks == nil {
		l.hooks = hooks.NewHookManager(logger)
		l.ownsHooks = true
	}
	if opts.TracerProvider != nil {
		l.tracer = opts.TracerProvider.Tracer("github.com/INLOpen/nexuslake/lake")
	} else {
		l.tracer = noop.NewTracerProvider().Tracer("")
	}

	l.values = cache.NewLRUCache[core.Location, V](opts.ValueCacheCapacity, nil)
	l.values.SetMetrics(l.metrics.ValueCacheHits, l.metrics.ValueCacheMisses)

	store, err := logstore.Open(logstore.Options{
		Dir:            opts.Dir,
		MaxFileSize:    opts.MaxFileSize,
		SyncMode:       opts.SyncMode,
		SessionID:      sessionID,
		Logger:         opts.Logger,
		BytesWritten:   l.metrics.BytesWrittenTotal,
		RecordsWritten: l.metrics.RecordsWrittenTotal,
		OnRotate:       l.onRotate,
	})
	if err != nil {
		l.stopOwnedHooks()
		return nil, fmt.Errorf("failed to open lake in %s: %w", opts.Dir, err)
	}
	l.store = store

	if opts.RebuildOnOpen {
		if _, err := l.Rebuild(context.Background()); err != nil {
			_ = store.Close()
			l.stopOwnedHooks()
			return nil, fmt.Errorf("failed to rebuild index on open: %w", err)
		}
	}

	l.trigger(context.Background(), hooks.NewPostOpenEvent(l.lifecyclePayload()))
	l.logger.Info("Lake opened", "dir", store.Dir(), "active_file", store.ActiveFileID(), "indexed_keys", l.index.Len())
	return l, nil
}

func (l *Lake[K, V]) onRotate(oldID, newID uint64) {
	l.logger.Debug("Log file rotated", "old_file", oldID, "new_file", newID)
	l.trigger(context.Background(), hooks.NewPostRotateEvent(hooks.PostRotatePayload{OldFileID: oldID, NewFileID: newID}))
}

// trigger fires an event whose listener errors cannot cancel anything.
func (l *Lake[K, V]) trigger(ctx context.Context, event hooks.HookEvent) {
	if err := l.hooks.Trigger(ctx, event); err != nil {
		l.logger.Warn("Hook returned an error", "event", event.Type(), "error", err)
	}
}

func (l *Lake[K, V]) lifecyclePayload() hooks.LakeLifecyclePayload {
	return hooks.LakeLifecyclePayload{Dir: l.opts.Dir, SessionID: l.sessionID.String()}
}

// Insert appends v to the active log file and records its location under
// v.Key(). The returned Location is durable per the configured sync mode and
// is visible to Lookup as soon as Insert returns. A failed insert leaves the
// index unchanged.
func (l *Lake[K, V]) Insert(ctx context.Context, v V) (loc core.Location, err error) {
	ctx, span := l.tracer.Start(ctx, "Lake.Insert")
	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		if err != nil {
			l.metrics.InsertErrorsTotal.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			l.metrics.observeInsert(duration)
		}
		span.SetAttributes(attribute.Float64("duration_seconds", duration))
		span.End()
	}()
	if l.closed.Load() {
		return core.Location{}, core.ErrClosed
	}
	l.metrics.InsertTotal.Add(1)

	key := v.Key()
	if err := l.hooks.Trigger(ctx, hooks.NewPreInsertEvent(hooks.PreInsertPayload{Key: key})); err != nil {
		return core.Location{}, fmt.Errorf("insert of key %v rejected: %w", key, err)
	}

	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)
	if err := l.codec.Encode(buf, v); err != nil {
		return core.Location{}, fmt.Errorf("failed to encode value for key %v: %w", key, err)
	}
	size := buf.Len()

	l.writeMu.Lock()
	loc, err = l.store.Append(buf.Bytes())
	if err != nil {
		l.writeMu.Unlock()
		return core.Location{}, fmt.Errorf("failed to append value for key %v: %w", key, err)
	}
	created := l.index.Record(key, loc)
	l.writeMu.Unlock()

	span.SetAttributes(
		attribute.String("lake.key", fmt.Sprint(key)),
		attribute.Int64("lake.file_id", int64(loc.FileID)),
		attribute.Int64("lake.offset", loc.Offset),
		attribute.Int("lake.record_bytes", size),
	)
	if created {
		l.metrics.KeysCreatedTotal.Add(1)
		l.trigger(ctx, hooks.NewOnKeyCreateEvent(hooks.KeyCreatePayload{Key: key, Location: loc}))
	}
	l.trigger(ctx, hooks.NewPostInsertEvent(hooks.PostInsertPayload{Key: key, Location: loc, Size: size}))
	return loc, nil
}

// Lookup returns every indexed version of key, oldest first. A key that is
// not indexed yields an empty result and no error.
func (l *Lake[K, V]) Lookup(ctx context.Context, key K) ([]V, error) {
	_, span := l.tracer.Start(ctx, "Lake.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("lake.key", fmt.Sprint(key)))
	if l.closed.Load() {
		return nil, core.ErrClosed
	}
	l.metrics.LookupTotal.Add(1)

	locs := l.index.LocationsOf(key)
	span.SetAttributes(attribute.Int("lake.versions", len(locs)))
	if len(locs) == 0 {
		return nil, nil
	}

	values := make([]V, 0, len(locs))
	for _, loc := range locs {
		v, err := l.readValue(loc)
		if err != nil {
			l.metrics.LookupErrorsTotal.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to read version of key %v at %s: %w", key, loc, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Latest returns the most recently inserted version of key. ok is false when
// the key is not indexed.
func (l *Lake[K, V]) Latest(ctx context.Context, key K) (v V, ok bool, err error) {
	_, span := l.tracer.Start(ctx, "Lake.Latest")
	defer span.End()
	span.SetAttributes(attribute.String("lake.key", fmt.Sprint(key)))
	if l.closed.Load() {
		return v, false, core.ErrClosed
	}
	l.metrics.LookupTotal.Add(1)

	loc, found := l.index.LatestLocationOf(key)
	span.SetAttributes(attribute.Bool("lake.found", found))
	if !found {
		return v, false, nil
	}
	v, err = l.readValue(loc)
	if err != nil {
		l.metrics.LookupErrorsTotal.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return v, false, fmt.Errorf("failed to read latest version of key %v at %s: %w", key, loc, err)
	}
	return v, true, nil
}

// readValue decodes the record at loc, going through the value cache.
// Cached values are shared between callers and must not be modified.
func (l *Lake[K, V]) readValue(loc core.Location) (V, error) {
	if v, ok := l.values.Get(loc); ok {
		return v, nil
	}

	start := time.Now()
	var v V
	_, err := l.store.ReadAt(loc, func(r codec.Reader) error {
		decoded, err := l.codec.Decode(r)
		if err != nil {
			return err
		}
		v = decoded
		return nil
	})
	if err != nil {
		return v, err
	}
	l.metrics.observeRead(time.Since(start).Seconds())
	l.metrics.RecordsReadTotal.Add(1)
	l.values.Put(loc, v)
	return v, nil
}

// Delete removes key from the index. The log keeps its records, so a later
// Rebuild indexes the key again. It reports whether the key was indexed.
func (l *Lake[K, V]) Delete(ctx context.Context, key K) bool {
	if l.closed.Load() {
		return false
	}
	l.metrics.DeleteTotal.Add(1)
	removed := l.index.Remove(key)
	l.trigger(ctx, hooks.NewPostDeleteEvent(hooks.PostDeletePayload{Key: key, Removed: removed}))
	return removed
}

// ClearIndex empties the index. The log files are untouched.
func (l *Lake[K, V]) ClearIndex() {
	cleared := l.index.Len()
	l.index.Clear()
	l.logger.Info("Index cleared", "keys_cleared", cleared)
	l.trigger(context.Background(), hooks.NewPostClearIndexEvent(hooks.ClearIndexPayload{KeysCleared: cleared}))
}

// IndexedKeys returns the indexed keys in ascending order.
func (l *Lake[K, V]) IndexedKeys() []K {
	return l.index.Keys()
}

// Sync flushes and fsyncs the active log file.
func (l *Lake[K, V]) Sync() error {
	if l.closed.Load() {
		return core.ErrClosed
	}
	return l.store.Sync()
}

// Rotate seals the active log file and starts a new one.
func (l *Lake[K, V]) Rotate() error {
	if l.closed.Load() {
		return core.ErrClosed
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.store.Rotate()
}

// Stats is a point-in-time summary of a lake.
type Stats struct {
	Dir               string
	SessionID         string
	IndexedKeys       int
	IndexedLocations  int
	ActiveFileID      uint64
	ReferencedFiles   []uint64
	ValueCacheEntries int
	ValueCacheHitRate float64
	Uptime            time.Duration
}

// Stats returns a summary of the lake.
func (l *Lake[K, V]) Stats() Stats {
	return Stats{
		Dir:               l.opts.Dir,
		SessionID:         l.sessionID.String(),
		IndexedKeys:       l.index.Len(),
		IndexedLocations:  l.index.LocationCount(),
		ActiveFileID:      l.store.ActiveFileID(),
		ReferencedFiles:   l.index.ReferencedFiles().ToArray(),
		ValueCacheEntries: l.values.Len(),
		ValueCacheHitRate: l.values.GetHitRate(),
		Uptime:            time.Since(l.openedTime),
	}
}

// Metrics returns the lake's metric set.
func (l *Lake[K, V]) Metrics() *Metrics { return l.metrics }

// Dir returns the lake directory.
func (l *Lake[K, V]) Dir() string { return l.opts.Dir }

// Close syncs and closes the log files and releases the directory lock.
// Operations after Close fail with core.ErrClosed.
func (l *Lake[K, V]) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.trigger(context.Background(), hooks.NewPreCloseEvent(l.lifecyclePayload()))

	l.writeMu.Lock()
	err := l.store.Close()
	l.writeMu.Unlock()

	l.stopOwnedHooks()
	if err != nil {
		l.logger.Error("Failed to close lake cleanly", "error", err)
		return err
	}
	l.logger.Info("Lake closed")
	return nil
}

// stopOwnedHooks waits for async listeners of a hook manager the lake created
// itself. A caller-supplied manager is left running.
func (l *Lake[K, V]) stopOwnedHooks() {
	if l.ownsHooks {
		l.hooks.Stop()
	}
}
