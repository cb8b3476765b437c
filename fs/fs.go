package appfs

import "embed"

// FS holds the files shipped within the binary.
//
//go:embed migrations/*.sql
var FS embed.FS
