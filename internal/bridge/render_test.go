// ABOUTME: Tests for answer rendering and progress body selection.

package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/sydney-bridge/internal/sydney"
	"github.com/2389/sydney-bridge/internal/wire"
)

func TestRenderHTML(t *testing.T) {
	html := renderHTML("**bold** and [link](https://example.org)")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, `<a href="https://example.org">link</a>`)
}

func TestFormatAnswer_PlainText(t *testing.T) {
	res := &sydney.Result{Answer: wire.Message{Text: "The answer is 42."}}

	plain, html := formatAnswer(res)
	assert.Equal(t, "The answer is 42.", plain)
	assert.Contains(t, html, "The answer is 42.")
}

func TestFormatAnswer_WithAttributions(t *testing.T) {
	res := &sydney.Result{Answer: wire.Message{
		Text: "Water boils at 100°C.",
		SourceAttributions: []wire.SourceAttribution{
			{ProviderDisplayName: "Encyclopedia", SeeMoreURL: "https://enc.example.org/water"},
			{ProviderDisplayName: "Science Daily", SeeMoreURL: "https://sci.example.org/boil"},
		},
	}}

	plain, html := formatAnswer(res)
	assert.Contains(t, plain, "1. [Encyclopedia](https://enc.example.org/water)")
	assert.Contains(t, plain, "2. [Science Daily](https://sci.example.org/boil)")
	assert.Contains(t, html, `<a href="https://enc.example.org/water">Encyclopedia</a>`)
}

func TestFormatAnswer_Empty(t *testing.T) {
	plain, html := formatAnswer(&sydney.Result{})
	assert.Empty(t, plain)
	assert.Empty(t, html)
}

func TestProgressBody(t *testing.T) {
	tests := []struct {
		name string
		msgs []wire.Message
		want string
	}{
		{
			"growing answer wins",
			[]wire.Message{
				{MessageType: "InternalSearchQuery", Text: "searching the web"},
				{Text: "Water boils at"},
			},
			"Water boils at …",
		},
		{
			"status only",
			[]wire.Message{{MessageType: "InternalSearchQuery", Text: "searching the web"}},
			"(searching the web)",
		},
		{
			"latest status wins",
			[]wire.Message{
				{MessageType: "InternalSearchQuery", Text: "searching"},
				{MessageType: "InternalLoaderMessage", Text: "reading results"},
			},
			"(reading results)",
		},
		{
			"nothing displayable",
			[]wire.Message{{MessageType: "RenderCardRequest"}},
			"",
		},
		{"empty snapshot", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressBody(tt.msgs))
		})
	}
}
