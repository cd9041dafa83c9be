// Package mirror rewrites symbolic repository-root URLs through a
// configurable redirect table, so organizations running internal mirrors
// can repoint well-known roots without touching artifact lists.
package mirror

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Built-in repository roots. Each maps a symbolic scheme (the part of an
// artifact URL before the first colon) to its canonical base URL.
var builtinRoots = map[string]string{
	"MAVEN_CENTRAL": "http://repo1.maven.org/maven2",
	"ECLIPSE":       "http://download.eclipse.org",
}

// configPrefix marks the significant lines of a mirror configuration file:
// download.<scheme>=<base-url>
const configPrefix = "download."

// Table resolves symbolic repository roots to base URLs. Overrides from a
// configuration file take precedence over the built-in roots. A Table is
// immutable after Load; it is safe for concurrent use.
type Table struct {
	overrides map[string]string
}

// DefaultPaths returns the layered configuration locations: the
// project-local file in the working directory and the user-global file
// under ~/.config/artifetch.
func DefaultPaths() (local, global string) {
	local = "artifetch.properties"
	if home, err := os.UserHomeDir(); err == nil {
		global = filepath.Join(home, ".config", "artifetch", "artifetch.properties")
	}
	return local, global
}

// Empty returns a table with no overrides; only built-in roots apply.
func Empty() *Table {
	return &Table{overrides: map[string]string{}}
}

// Load builds a table from at most two layered configuration files. If the
// project-local file exists, only it is consulted; otherwise the user-global
// file is. Unreadable or unparseable files silently yield no overrides.
func Load(localPath, globalPath string) *Table {
	for _, path := range []string{localPath, globalPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		t := &Table{overrides: parseFile(path)}
		slog.Debug("loaded mirror config", "path", path, "overrides", len(t.overrides))
		return t
	}
	return Empty()
}

func parseFile(path string) map[string]string {
	out := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, configPrefix) {
			continue
		}
		key, value, ok := strings.Cut(line[len(configPrefix):], "=")
		if !ok {
			continue
		}
		scheme := strings.TrimSpace(key)
		base := strings.TrimRight(strings.TrimSpace(value), "/")
		if scheme == "" || base == "" {
			continue
		}
		out[scheme] = base
	}
	return out
}

// Resolve rewrites url through the table. URLs whose scheme is not a known
// symbolic repository root (or that contain no colon at all) are returned
// unchanged and treated as directly fetchable. Pure: no network or
// filesystem access.
func (t *Table) Resolve(url string) string {
	scheme, rest, ok := strings.Cut(url, ":")
	if !ok {
		return url
	}

	base, found := t.overrides[scheme]
	if !found {
		base, found = builtinRoots[scheme]
	}
	if !found {
		return url
	}

	base = strings.TrimRight(base, "/")
	rest = strings.TrimLeft(rest, "/")
	return base + "/" + rest
}
