package storage

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// schemaStatements splits an embedded schema file into individual statements.
func schemaStatements(name string) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}

	var out []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out, nil
}
