package migration

import (
	"path/filepath"
	"sort"
)

// SortByFileName orders paths by base name, breaking ties by full path.
// The sort is stable and happens in place.
func SortByFileName(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		bi, bj := filepath.Base(paths[i]), filepath.Base(paths[j])
		if bi != bj {
			return bi < bj
		}

		return paths[i] < paths[j]
	})
}
