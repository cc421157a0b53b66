package blob

import (
	"fmt"
	"strings"
)

// OpenURI constructs the store selected by a storage URI:
//
//	file:///path or a bare path  -> filesystem
//	sqlite:///path/to/store.db   -> SQLite
//	redis://host:port/db         -> Redis
//	mem://                       -> in-memory
//
// Cloud object stores (s3://, gs://, az://) satisfy the same contract but
// have no built-in backend; the scheme is rejected explicitly rather than
// silently treated as a path.
func OpenURI(uri string) (Store, error) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return NewFSStore(strings.TrimPrefix(uri, "file://"))
	case strings.HasPrefix(uri, "sqlite://"):
		path := strings.TrimPrefix(uri, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("open %q: sqlite URI needs a path", uri)
		}
		return OpenSQLite(path)
	case strings.HasPrefix(uri, "redis://"), strings.HasPrefix(uri, "rediss://"):
		return OpenRedis(uri)
	case strings.HasPrefix(uri, "mem://"):
		return NewMemStore(), nil
	case strings.HasPrefix(uri, "s3://"), strings.HasPrefix(uri, "gs://"), strings.HasPrefix(uri, "az://"):
		return nil, fmt.Errorf("open %q: no built-in backend for this scheme; provide a Store implementation", uri)
	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("open %q: unknown storage scheme", uri)
	default:
		return NewFSStore(uri)
	}
}
