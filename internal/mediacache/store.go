// Package mediacache implements the durable (platform, post-id, blob-id)
// -> TgFile mapping backed by Postgres. It is shared by every platform
// adapter, each of which only supplies its own platform tag.
package mediacache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/snowpity/postingcache/internal/logging"
	"github.com/snowpity/postingcache/internal/posting/model"
)

// Store is a keyed durable mapping from (platform, post-id, blob-id) to
// TgFile. Get never errors on a missing post: it returns an empty slice.
// Set has insert-or-ignore semantics: concurrent/duplicate writes for the
// same key are no-ops past the first writer.
type Store struct {
	db *sql.DB
}

// pingMaxElapsed bounds how long Open retries a not-yet-ready Postgres
// before giving up, covering the common startup race where the service
// container comes up before its database does.
const pingMaxElapsed = 30 * time.Second

// Open connects to Postgres using dsn and verifies connectivity, retrying
// the initial ping with exponential backoff so the service survives
// starting before Postgres is ready to accept connections. Callers are
// expected to call Migrate once at startup before serving traffic.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = pingMaxElapsed

	pingErr := backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		logging.Warnf("postgres not ready yet, retrying in %s: %v", d, err)
	})
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", pingErr)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open database handle, for callers that manage
// their own connection lifecycle.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection pool. Migrate, in this package,
// reaches the pool directly.
func (s *Store) DB() *sql.DB { return s.db }

// Get returns every cached blob known for (platform, postID). The result
// may be a subset of the post's actual blobs, or empty if the post has
// never been cached.
func (s *Store) Get(ctx context.Context, platform model.Platform, postID string) ([]model.CachedBlob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blob_id, tg_file_id, tg_file_kind
		FROM tg_media_cache
		WHERE platform = $1 AND post_id = $2
	`, string(platform), postID)
	if err != nil {
		return nil, fmt.Errorf("query media cache: %w", err)
	}
	defer rows.Close()

	var out []model.CachedBlob
	for rows.Next() {
		var blobID, fileID, fileKind string
		if err := rows.Scan(&blobID, &fileID, &fileKind); err != nil {
			return nil, fmt.Errorf("scan media cache row: %w", err)
		}
		out = append(out, model.CachedBlob{
			BlobID: model.BlobID{Value: blobID},
			TgFile: model.TgFile{Handle: fileID, Kind: model.TgFileKind(fileKind)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media cache rows: %w", err)
	}
	return out, nil
}

// Set records that blob has been uploaded. A duplicate insert for the same
// (platform, post, blob) key is a silent no-op: the existing cache entry is
// logically identical, not a correctness issue.
func (s *Store) Set(ctx context.Context, platform model.Platform, postID string, blob model.CachedBlob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tg_media_cache (platform, post_id, blob_id, tg_file_id, tg_file_kind)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, post_id, blob_id) DO NOTHING
	`, string(platform), postID, blob.BlobID.Value, blob.TgFile.Handle, string(blob.TgFile.Kind))
	if err != nil {
		return fmt.Errorf("insert media cache row: %w", err)
	}
	return nil
}

// ErrNotConfigured is returned by adapters constructed without a backing
// store, e.g. in unit tests that only exercise ParseQuery/GetPost.
var ErrNotConfigured = errors.New("mediacache: store not configured")
