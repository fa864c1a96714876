// Package version determines the version string a migration run records.
package version

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aqasim81/schemakick/internal/migration"
)

// Default is recorded when no resolver yields a version.
const Default = "0"

// Resolver produces a version string. An empty result means "no opinion".
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Literal is a fixed version.
type Literal string

// Resolve returns the literal, trimmed.
func (l Literal) Resolve(context.Context) (string, error) {
	return strings.TrimSpace(string(l)), nil
}

// File reads the version from the first non-empty line of a file.
type File struct {
	Fs   afero.Fs
	Path string
}

// Resolve reads the file. An unset Path yields "".
func (f File) Resolve(context.Context) (string, error) {
	if f.Path == "" {
		return "", nil
	}

	file, err := f.Fs.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("opening version file: %w", err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}

	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading version file: %w", err)
	}

	return "", nil
}

// ScriptNumber takes the largest leading integer among the script names
// of a folder, so "0042_add_orders.sql" contributes 42.
type ScriptNumber struct {
	Fs        afero.Fs
	Dir       string
	Recursive bool
}

// Resolve scans the folder. No numbered scripts yields "".
func (s ScriptNumber) Resolve(context.Context) (string, error) {
	paths, err := migration.ListScripts(s.Fs, s.Dir, s.Recursive)
	if err != nil {
		return "", err
	}

	best := ""

	for _, p := range paths {
		n := leadingNumber(filepath.Base(p))
		if n != "" && greater(n, best) {
			best = n
		}
	}

	return best, nil
}

// leadingNumber returns the leading digits of name without leading zeros.
func leadingNumber(name string) string {
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}

	if end == 0 {
		return ""
	}

	n := strings.TrimLeft(name[:end], "0")
	if n == "" {
		return "0"
	}

	return n
}

// greater compares two canonical decimal strings of any length.
func greater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}

	return a > b
}

// Chain asks each resolver in turn and returns the first non-empty
// version, or Default.
type Chain []Resolver

// Resolve walks the chain.
func (c Chain) Resolve(ctx context.Context) (string, error) {
	for _, r := range c {
		v, err := r.Resolve(ctx)
		if err != nil {
			return "", err
		}

		if v != "" {
			return v, nil
		}
	}

	return Default, nil
}
