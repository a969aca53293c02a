// Package migrations embeds the Postgres schema, applied in file-name order.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

type File struct {
	Name string
	SQL  string
}

func Files() ([]File, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	out := make([]File, 0, len(names))
	for _, name := range names {
		payload, err := fs.ReadFile(files, name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(payload)) == "" {
			continue
		}
		out = append(out, File{Name: name, SQL: string(payload)})
	}
	return out, nil
}
