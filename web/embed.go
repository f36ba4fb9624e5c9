// Package web holds the review page served at /.
package web

import "embed"

//go:embed index.html
var Files embed.FS
