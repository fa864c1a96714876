package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/splitter"
)

// splitOnly answers the three questions statements asks; every other
// method of database.Database panics through the nil embedded interface.
type splitOnly struct {
	database.Database
	split   bool
	pattern string
}

func (s splitOnly) SplitBatchStatements() bool        { return s.split }
func (s splitOnly) StatementSeparatorPattern() string { return s.pattern }

type nativeSplitter struct{ splitOnly }

func (nativeSplitter) SplitStatements(string) ([]string, error) {
	return []string{"native"}, nil
}

func TestStatements(t *testing.T) {
	t.Parallel()

	const text = "SELECT 1;\nSELECT 2;"

	tests := []struct {
		name string
		db   database.Database
		want []string
	}{
		{
			name: "no splitting sends the whole text",
			db:   splitOnly{split: false, pattern: splitter.SemicolonPattern},
			want: []string{text},
		},
		{
			name: "pattern splits",
			db:   splitOnly{split: true, pattern: splitter.SemicolonPattern},
			want: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name: "pattern wins over native splitter",
			db:   nativeSplitter{splitOnly{split: true, pattern: splitter.SemicolonPattern}},
			want: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name: "native splitter without pattern",
			db:   nativeSplitter{splitOnly{split: true}},
			want: []string{"native"},
		},
		{
			name: "no pattern and no splitter",
			db:   splitOnly{split: true},
			want: []string{text},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &Migrator{db: tt.db}

			got, err := m.statements(text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "before", PhaseBefore.String())
	assert.Equal(t, "during", PhaseDuring.String())
	assert.Equal(t, "after", PhaseAfter.String())
}

func TestJoinScripts(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\nb", joinScripts("a", "", "b"))
	assert.Empty(t, joinScripts("", ""))
}
