// Package prompts embeds the compiler prompt templates.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
