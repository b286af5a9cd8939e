// Package prompts embeds the forecast strategy-selection prompt.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
