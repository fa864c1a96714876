package migration

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const scriptExt = ".sql"

// ListScripts returns the script paths of dir in execution order. A
// missing dir yields no scripts.
//
// In traverse mode (recursive == false) the files of a directory come
// first in name order, then each child directory in name order, depth
// first. In recursive mode every file under dir is ordered by file name
// regardless of the directory it lives in.
func ListScripts(fsys afero.Fs, dir string, recursive bool) ([]string, error) {
	ok, err := afero.DirExists(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("checking scripts directory %s: %w", dir, err)
	}

	if !ok {
		return nil, nil
	}

	var (
		files []string
		stack = []string{dir}
	)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := afero.ReadDir(fsys, current)
		if err != nil {
			return nil, fmt.Errorf("reading scripts directory %s: %w", current, err)
		}

		var children []string

		for _, entry := range entries {
			path := filepath.Join(current, entry.Name())

			switch {
			case entry.IsDir():
				children = append(children, path)
			case strings.EqualFold(filepath.Ext(entry.Name()), scriptExt):
				files = append(files, path)
			}
		}

		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	if recursive {
		SortByFileName(files)
	}

	return files, nil
}

// ReadScript returns the content of a script file.
func ReadScript(fsys afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", fmt.Errorf("reading script %s: %w", path, err)
	}

	return string(data), nil
}
