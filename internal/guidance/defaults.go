package guidance

import (
	"embed"
	"io/fs"
)

//go:embed builtin/*.md
var builtin embed.FS

// Builtin returns the embedded documents with their file names at the
// root, for copying into a guidance directory.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "builtin")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory
	}
	return sub
}
