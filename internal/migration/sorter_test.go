package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aqasim81/schemakick/internal/migration"
)

func TestSortByFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "orders by base name",
			input: []string{"b/002.sql", "a/003.sql", "c/001.sql"},
			want:  []string{"c/001.sql", "b/002.sql", "a/003.sql"},
		},
		{
			name:  "equal base names fall back to full path",
			input: []string{"z/001.sql", "a/001.sql"},
			want:  []string{"a/001.sql", "z/001.sql"},
		},
		{
			name:  "empty input",
			input: []string{},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			migration.SortByFileName(tt.input)
			assert.Equal(t, tt.want, tt.input)
		})
	}
}
