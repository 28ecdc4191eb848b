// Package migrations embeds the goose migrations of every SQL backend.
package migrations

import "embed"

//go:embed clickhouse/*.sql postgres/*.sql
var FS embed.FS

// Dialect returns the goose dialect and migrations directory for a storage backend
func Dialect(backend string) (dialect, dir string, ok bool) {
	switch backend {
	case "clickhouse":
		return "clickhouse", "clickhouse", true
	case "postgres":
		return "postgres", "postgres", true
	}
	return "", "", false
}
