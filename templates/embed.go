package templates

import "embed"

// EmailFS contains the html/template sources of outbound emails.
//
//go:embed email/*.html
var EmailFS embed.FS
