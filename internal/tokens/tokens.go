// Package tokens substitutes {{Token}} placeholders in script text.
package tokens

import (
	"regexp"
	"strings"
	"sync"

	"github.com/aqasim81/schemakick/internal/config"
)

// Built-in token names.
const (
	DatabaseName      = "DatabaseName"
	ServerName        = "ServerName"
	EnvironmentName   = "EnvironmentName"
	RepositoryPath    = "RepositoryPath"
	Version           = "Version"
	OutputPath        = "OutputPath"
	SQLFilesDirectory = "SqlFilesDirectory"
)

var tokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Replacer holds token values keyed case-insensitively. It is safe for
// concurrent use.
type Replacer struct {
	mu     sync.RWMutex
	values map[string]string
}

// New seeds a Replacer from configuration. User tokens override built-ins
// of the same name. Values only known at run time (database name, server
// name, version) are added later with Set.
func New(cfg *config.Config) *Replacer {
	r := &Replacer{values: make(map[string]string)}

	r.Set(EnvironmentName, cfg.EnvironmentName)
	r.Set(RepositoryPath, cfg.RepositoryPath)
	r.Set(OutputPath, cfg.OutputPath)
	r.Set(SQLFilesDirectory, cfg.SQLFilesDirectory)

	if cfg.Version != "" {
		r.Set(Version, cfg.Version)
	}

	for k, v := range cfg.Tokens {
		r.Set(k, v)
	}

	return r
}

// Set defines or replaces a token value.
func (r *Replacer) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[strings.ToLower(name)] = value
}

// Lookup returns the value of a token.
func (r *Replacer) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[strings.ToLower(name)]

	return v, ok
}

// Replace substitutes every known {{Token}} in text. Unknown tokens are
// left as written.
func (r *Replacer) Replace(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]

		if v, ok := r.Lookup(name); ok {
			return v
		}

		return match
	})
}
