// Package web holds the single-page UI served at "/".
package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed static
var assets embed.FS

// Assets returns the UI files rooted at the static directory. When dir is not
// empty the files are served from disk instead, which is handy while editing
// the UI without rebuilding.
func Assets(dir string) (fs.FS, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(assets, "static")
}
