package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
)

// Export uploads rows to bucket/key. Keys ending in ".ndjson" or ".jsonl"
// are written one row per line, everything else as a single JSON array.
func Export(ctx context.Context, store Store, bucket, key string, rows []driver.Row) (*ObjectInfo, error) {
	if bucket == "" || key == "" {
		return nil, errs.Configuration("export needs a bucket and a key, got %q/%q", bucket, key)
	}
	if rows == nil {
		rows = []driver.Row{}
	}

	body, contentType, err := encode(key, rows)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryExecution, "unable to encode rows", err)
	}

	return store.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), contentType)
}

// SplitTarget parses "bucket/key/with/slashes" into its bucket and key.
func SplitTarget(target string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(target, "/"), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errs.Configuration("export target must be bucket/key, got %q", target)
	}
	return bucket, key, nil
}

func encode(key string, rows []driver.Row) ([]byte, string, error) {
	if strings.HasSuffix(key, ".ndjson") || strings.HasSuffix(key, ".jsonl") {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return nil, "", err
			}
		}
		return buf.Bytes(), contentTypeNDJSON, nil
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return nil, "", err
	}
	return body, contentTypeJSON, nil
}
