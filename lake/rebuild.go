package lake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/keyindex"
	"github.com/INLOpen/nexuslake/logstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// CorruptFile describes a log file that a rebuild found damaged before its
// end.
type CorruptFile struct {
	FileID uint64
	// Offset is where the first undecodable record starts.
	Offset int64
	Err    error
}

// RebuildReport summarizes a Rebuild.
type RebuildReport struct {
	FilesScanned   int
	RecordsIndexed int
	KeysIndexed    int
	// TruncatedFiles ended partway through a record. The partial record was
	// ignored.
	TruncatedFiles []uint64
	// CorruptFiles were only partly indexed. Always empty under RebuildAbort.
	CorruptFiles []CorruptFile
	Duration     time.Duration
}

// fileScan is the outcome of scanning one file. keys[i] was found at locs[i].
type fileScan[K any] struct {
	keys    []K
	locs    []core.Location
	result  logstore.ScanResult
	corrupt *core.CorruptRecordError
}

// Rebuild replaces the index with one built from the log files of the lake
// directory. Files are scanned in parallel but merged in file ID order, so
// each key's versions end up in write order. Readers keep seeing the old
// index until the new one is swapped in; inserts wait for the rebuild.
//
// On error the previous index is left in place.
func (l *Lake[K, V]) Rebuild(ctx context.Context) (report RebuildReport, err error) {
	ctx, span := l.tracer.Start(ctx, "Lake.Rebuild")
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		observeLatency(l.metrics.RebuildLatencyHist, report.Duration.Seconds())
		l.metrics.RebuildLastDurationMillis.Set(report.Duration.Milliseconds())
		span.SetAttributes(
			attribute.Int("lake.files_scanned", report.FilesScanned),
			attribute.Int("lake.records_indexed", report.RecordsIndexed),
		)
		if err != nil {
			l.metrics.RebuildErrorsTotal.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		l.trigger(ctx, hooks.NewPostRebuildEvent(rebuildPayload(report, err)))
	}()
	if l.closed.Load() {
		return report, core.ErrClosed
	}
	l.metrics.RebuildTotal.Add(1)

	if err := l.hooks.Trigger(ctx, hooks.NewPreRebuildEvent(hooks.PreRebuildPayload{Dir: l.opts.Dir})); err != nil {
		return report, fmt.Errorf("rebuild rejected: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	files, err := l.store.EnumerateFiles()
	if err != nil {
		return report, fmt.Errorf("failed to enumerate log files: %w", err)
	}
	l.logger.Info("Rebuilding index", "files", len(files), "policy", l.opts.RebuildPolicy.String(), "concurrency", l.opts.RebuildConcurrency)

	scans := make([]fileScan[K], len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.RebuildConcurrency)
	for i, f := range files {
		g.Go(func() error {
			return l.scanFile(gctx, f.ID, &scans[i])
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("rebuild failed: %w", err)
	}

	fresh := keyindex.New[K]()
	for i := range scans {
		scan := &scans[i]
		report.FilesScanned++
		if scan.result.Truncated {
			report.TruncatedFiles = append(report.TruncatedFiles, scan.result.FileID)
			l.metrics.RebuildTruncatedFiles.Add(1)
			l.logger.Warn("Ignoring truncated record at end of log file", "file_id", scan.result.FileID, "offset", scan.result.End)
		}
		if scan.corrupt != nil {
			l.metrics.RebuildCorruptFilesTotal.Add(1)
			skipped := l.opts.RebuildPolicy == RebuildSkipFile
			l.trigger(ctx, hooks.NewOnCorruptFileEvent(hooks.CorruptFilePayload{
				FileID:  scan.corrupt.FileID,
				Offset:  scan.corrupt.Offset,
				Skipped: skipped,
				Error:   scan.corrupt,
			}))
			if !skipped {
				return report, scan.corrupt
			}
			l.logger.Error("Skipping rest of corrupt log file", "file_id", scan.corrupt.FileID, "offset", scan.corrupt.Offset, "indexed_records", len(scan.locs), "error", scan.corrupt.Err)
			report.CorruptFiles = append(report.CorruptFiles, CorruptFile{FileID: scan.corrupt.FileID, Offset: scan.corrupt.Offset, Err: scan.corrupt})
		}
		for j, key := range scan.keys {
			fresh.Record(key, scan.locs[j])
		}
		report.RecordsIndexed += len(scan.locs)
	}

	report.KeysIndexed = fresh.Len()
	l.index.Swap(fresh)
	l.metrics.RebuildRecordsTotal.Add(int64(report.RecordsIndexed))

	l.logger.Info("Index rebuilt",
		"files_scanned", report.FilesScanned,
		"records_indexed", report.RecordsIndexed,
		"keys_indexed", report.KeysIndexed,
		"truncated_files", len(report.TruncatedFiles),
		"corrupt_files", len(report.CorruptFiles),
		"duration", time.Since(start),
	)
	return report, nil
}

// scanFile collects the key and location of every complete record in one
// file. Corruption is stored in out rather than returned so that the merge
// step can act on the lowest damaged file regardless of scan timing.
func (l *Lake[K, V]) scanFile(ctx context.Context, fileID uint64, out *fileScan[K]) error {
	var key K
	decode := func(r codec.Reader) error {
		v, err := l.codec.Decode(r)
		if err != nil {
			return err
		}
		key = v.Key()
		return nil
	}

	result, err := l.store.Scan(ctx, fileID, decode, func(loc core.Location) error {
		out.keys = append(out.keys, key)
		out.locs = append(out.locs, loc)
		return nil
	})
	out.result = result
	if err != nil {
		var corrupt *core.CorruptRecordError
		if errors.As(err, &corrupt) {
			out.corrupt = corrupt
			return nil
		}
		return err
	}
	l.logger.Debug("Scanned log file", "file_id", fileID, "records", result.Records, "truncated", result.Truncated)
	return nil
}

func rebuildPayload(report RebuildReport, err error) hooks.PostRebuildPayload {
	payload := hooks.PostRebuildPayload{
		FilesScanned:   report.FilesScanned,
		RecordsIndexed: report.RecordsIndexed,
		KeysIndexed:    report.KeysIndexed,
		TruncatedFiles: report.TruncatedFiles,
		Duration:       report.Duration,
		Error:          err,
	}
	for _, cf := range report.CorruptFiles {
		payload.CorruptFiles = append(payload.CorruptFiles, cf.FileID)
	}
	return payload
}
