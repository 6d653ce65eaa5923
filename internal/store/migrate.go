package store

import (
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type migration struct {
	name string
	sql  string
}

// loadMigrations returns the embedded migrations for dialect in
// lexicographic order.
func loadMigrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read migration dir %s", dir)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		data, err := migrationFS.ReadFile(dir + "/" + e.Name())
		if err != nil {
			return nil, eris.Wrapf(err, "store: read migration %s", e.Name())
		}
		out = append(out, migration{name: e.Name(), sql: string(data)})
	}
	return out, nil
}
