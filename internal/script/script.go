// Package script classifies migration scripts and decides whether each one
// should run.
package script

import "strings"

// Category is how a script behaves across runs.
type Category int

// Categories.
const (
	// OneTime scripts run once and must never change afterwards.
	OneTime Category = iota
	// EveryTime scripts run on every migration.
	EveryTime
	// AnyTime scripts run whenever their content changes.
	AnyTime
	// EnvironmentScoped scripts run only in the environment named in their
	// file name.
	EnvironmentScoped
)

func (c Category) String() string {
	switch c {
	case OneTime:
		return "one-time"
	case EveryTime:
		return "every-time"
	case EnvironmentScoped:
		return "environment"
	default:
		return "any-time"
	}
}

// Script is a migration script read from disk.
type Script struct {
	Name         string
	Path         string
	Text         string
	RunOnce      bool
	RunEveryTime bool
}

// Category classifies the script. Environment scoping wins over the
// folder's run-once and every-time settings.
func (s Script) Category() Category {
	switch {
	case IsEnvironmentFile(s.Name):
		return EnvironmentScoped
	case IsEveryTime(s.Name, s.RunEveryTime):
		return EveryTime
	case s.RunOnce:
		return OneTime
	default:
		return AnyTime
	}
}

// IsEveryTime reports whether a script runs on every migration, either by
// folder setting or by an "everytime." name segment.
func IsEveryTime(name string, flag bool) bool {
	if flag {
		return true
	}

	lower := strings.ToLower(name)

	return strings.HasPrefix(lower, "everytime.") || strings.Contains(lower, ".everytime.")
}

// IsEnvironmentFile reports whether the name carries an ".env." marker.
func IsEnvironmentFile(name string) bool {
	return strings.Contains(strings.ToLower(name), ".env.")
}

// InEnvironment reports whether an environment file targets env, which it
// does when the name starts with "<env>." or contains ".<env>.".
func InEnvironment(name, env string) bool {
	lowerName := strings.ToLower(name)
	lowerEnv := strings.ToLower(env)

	return strings.HasPrefix(lowerName, lowerEnv+".") || strings.Contains(lowerName, "."+lowerEnv+".")
}
