package history

import (
	"strings"

	"github.com/harun/companion/pkg/relay"
)

// Render formats turns as the STUDENT:/GRANDPA: transcript used in prompts.
// Empty sides are omitted.
func Render(turns []relay.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if s := strings.TrimSpace(t.Transcript); s != "" {
			b.WriteString("STUDENT: ")
			b.WriteString(s)
			b.WriteString("\n")
		}
		if g := strings.TrimSpace(t.Feedback); g != "" {
			b.WriteString("GRANDPA: ")
			b.WriteString(g)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
