// Package schemas holds the JSON Schemas of the control API wire formats.
package schemas

import "embed"

// FS contains every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS
