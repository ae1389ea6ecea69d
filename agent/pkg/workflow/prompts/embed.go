// Package prompts embeds the prompt templates used by the query workflow.
package prompts

import "embed"

//go:embed *.md
var FS embed.FS
