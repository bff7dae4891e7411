package dynamicanalysis

import (
	"embed"
	"io/fs"
)

//go:embed assets
var assets embed.FS

// BuildContext returns the files the sandbox image is built from.
func BuildContext() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}
