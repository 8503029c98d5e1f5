package migrator

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration represents a database migration.
type Migration struct {
	Version       int
	Name          string
	UpSQL         string
	NoTransaction bool
	Dependencies  []int
}

var (
	filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_-]+)\.sql$`)
	upMarkerRegex = regexp.MustCompile(`^--\s*\+migrate\s+Up(\s+notransaction)?\s*$`)
	dependsRegex  = regexp.MustCompile(`^--\s*\+migrate\s+Depends:\s*(.*)$`)
)

// ParseMigration parses one migration named NNN_name.sql.
//
// The file must contain a "-- +migrate Up" marker (optionally followed by
// "notransaction"). "-- +migrate Depends: N M" lines directly after the
// marker declare versions that must be applied first.
func ParseMigration(filename string, content []byte) (*Migration, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("invalid migration filename format: %s (expected NNN_name.sql)", filename)
	}

	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid version number in filename: %s", matches[1])
	}

	m := &Migration{Version: version, Name: matches[2]}

	lines := strings.Split(string(content), "\n")
	marker := -1
	for i, line := range lines {
		if sub := upMarkerRegex.FindStringSubmatch(strings.TrimSpace(line)); sub != nil {
			marker = i
			m.NoTransaction = strings.TrimSpace(sub[1]) == "notransaction"
			break
		}
	}
	if marker < 0 {
		return nil, fmt.Errorf("missing '-- +migrate Up' marker in migration file: %s", filename)
	}

	body := lines[marker+1:]
	start := len(body)
	for i, raw := range body {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		sub := dependsRegex.FindStringSubmatch(line)
		if sub == nil {
			start = i
			break
		}

		fields := strings.Fields(sub[1])
		if len(fields) == 0 {
			return nil, fmt.Errorf("empty dependency list in migration file: %s", filename)
		}
		for _, f := range fields {
			dep, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid dependency version '%s' in migration file: %s", f, filename)
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}

	m.UpSQL = strings.TrimSpace(strings.Join(body[start:], "\n"))
	if !containsStatement(m.UpSQL) {
		return nil, fmt.Errorf("migration file contains no SQL statements: %s", filename)
	}

	return m, nil
}

// containsStatement reports whether sql has anything besides comments
func containsStatement(sql string) bool {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}

// LoadMigrations reads every NNN_name.sql file in dir of fsys, validates the
// set and returns it sorted by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !filenameRegex.MatchString(entry.Name()) {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file: %w", err)
		}

		m, err := ParseMigration(entry.Name(), content)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, *m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	if err := validateSet(migrations); err != nil {
		return nil, err
	}
	return migrations, nil
}

// validateSet checks that versions run 1..N without gaps or duplicates and
// that dependencies exist and form no cycle.
func validateSet(migrations []Migration) error {
	known := make(map[int]bool, len(migrations))
	for i, m := range migrations {
		if known[m.Version] {
			return fmt.Errorf("duplicate migration version: %d", m.Version)
		}
		if m.Version != i+1 {
			return fmt.Errorf("gap in migration versions: expected %d, found %d", i+1, m.Version)
		}
		known[m.Version] = true
	}

	for _, m := range migrations {
		for _, dep := range m.Dependencies {
			if !known[dep] {
				return fmt.Errorf("migration %d depends on non-existent version %d", m.Version, dep)
			}
		}
	}

	return detectCycle(migrations)
}

// detectCycle walks the dependency graph depth-first; reaching a node that is
// still on the stack means a cycle.
func detectCycle(migrations []Migration) error {
	deps := make(map[int][]int, len(migrations))
	for _, m := range migrations {
		deps[m.Version] = m.Dependencies
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[int]int, len(migrations))

	var visit func(v int, trail []int) error
	visit = func(v int, trail []int) error {
		state[v] = onStack
		trail = append(trail, v)
		for _, dep := range deps[v] {
			switch state[dep] {
			case onStack:
				return fmt.Errorf("circular dependency detected: %v", append(trail, dep))
			case unvisited:
				if err := visit(dep, trail); err != nil {
					return err
				}
			}
		}
		state[v] = done
		return nil
	}

	for _, m := range migrations {
		if state[m.Version] == unvisited {
			if err := visit(m.Version, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
