// ABOUTME: Rendering of backend results into Matrix message bodies.
// ABOUTME: Markdown answers become HTML formatted bodies; attributions become a reference list.

package bridge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/sydney-bridge/internal/sydney"
	"github.com/2389/sydney-bridge/internal/wire"
)

// renderHTML converts Markdown to HTML for a Matrix formatted body.
// Returns the empty string when conversion fails; callers then fall back
// to the plain body.
func renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// formatAnswer builds the final room message: the answer text followed by
// numbered source attributions. The plain body keeps the Markdown source,
// per Matrix convention for formatted messages.
func formatAnswer(res *sydney.Result) (plain, html string) {
	text := strings.TrimSpace(res.Answer.Text)
	if text == "" {
		return "", ""
	}

	var sb strings.Builder
	sb.WriteString(text)
	if len(res.Answer.SourceAttributions) > 0 {
		sb.WriteString("\n\n")
		for i, src := range res.Answer.SourceAttributions {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, src.ProviderDisplayName, src.SeeMoreURL)
		}
	}

	plain = strings.TrimSpace(sb.String())
	return plain, renderHTML(plain)
}

// progressBody flattens a fragment snapshot into interim display text: the
// growing answer when one exists, otherwise the latest status notice.
func progressBody(msgs []wire.Message) string {
	var status string
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.MessageType == "" && strings.TrimSpace(msg.Text) != "" {
			return msg.Text + " …"
		}
		if status == "" && msg.MessageType != "" && strings.TrimSpace(msg.Text) != "" {
			status = msg.Text
		}
	}
	if status != "" {
		return "(" + status + ")"
	}
	return ""
}
