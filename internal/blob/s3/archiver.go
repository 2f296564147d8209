package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/arbflow/arbflow/internal/domain"
)

// archiveBatchSize caps how many rows one archival run pulls from the store.
const archiveBatchSize = 10000

// archivePrefix is the key namespace for archived opportunity objects.
const archivePrefix = "archive/opportunities/"

// ArchiveSource lists rows eligible for archival.
type ArchiveSource interface {
	ListDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error)
}

// BlobWriter is the slice of Writer the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader is the slice of Reader the archiver needs.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (int64, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver moves long-deactivated opportunities out of Postgres into object
// storage as JSONL files, one object per day. It only reads and uploads;
// pruning the archived rows from the primary store is a separate, explicit
// step run after the archive has been verified.
type Archiver struct {
	store  ArchiveSource
	writer BlobWriter
	reader BlobReader
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(store ArchiveSource, writer BlobWriter, reader BlobReader, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities appends all opportunities deactivated before the
// cutoff to archive/opportunities/YYYY-MM-DD.jsonl and verifies the upload
// landed. Records already present in the day's object are kept, not
// rewritten, so repeated sweeps within a day only add what is new. It
// returns the number of newly archived records.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListDeactivatedBefore(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	path := archivePath(before)
	existing, seen, err := a.loadExisting(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive read existing: %w", err)
	}

	buf := bytes.NewBuffer(existing)
	enc := json.NewEncoder(buf)
	var added int64
	for _, opp := range opps {
		if seen[opp.ID] {
			continue
		}
		if err := enc.Encode(opp); err != nil {
			return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
		}
		added++
	}
	if added == 0 {
		a.logger.DebugContext(ctx, "archive already current", slog.String("path", path))
		return 0, nil
	}

	data := buf.Bytes()
	if int64(len(data)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	size, err := a.reader.Stat(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive verify: %w", err)
	}
	if size != int64(len(data)) {
		return 0, fmt.Errorf("s3blob: archive verify %s: size %d, uploaded %d", path, size, len(data))
	}

	a.logger.InfoContext(ctx, "archived opportunities",
		slog.String("path", path),
		slog.Int64("added", added),
		slog.Int64("bytes", size),
	)

	return added, nil
}

// loadExisting returns the current bytes of the day's object and the set of
// opportunity IDs already archived in it. A missing object yields an empty
// starting point.
func (a *Archiver) loadExisting(ctx context.Context, path string) ([]byte, map[string]bool, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, map[string]bool{}, nil
		}
		return nil, nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec struct {
			ID string `json:"id"`
		}
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("decode %s: %w", path, err)
		}
		seen[rec.ID] = true
	}
	return data, seen, nil
}

// ArchivedDays lists the days that have an archive object, as YYYY-MM-DD
// strings in key order.
func (a *Archiver) ArchivedDays(ctx context.Context) ([]string, error) {
	keys, err := a.reader.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive inventory: %w", err)
	}

	days := make([]string, 0, len(keys))
	for _, key := range keys {
		day := strings.TrimSuffix(strings.TrimPrefix(key, archivePrefix), ".jsonl")
		if day != "" {
			days = append(days, day)
		}
	}
	return days, nil
}

// archivePath builds the object key for an archival run, bucketed by day.
func archivePath(before time.Time) string {
	return archivePrefix + before.UTC().Format("2006-01-02") + ".jsonl"
}
