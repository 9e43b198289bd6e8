package render

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns raw model output into markup that is safe to hand to a
// display surface. It is pure and deterministic, performs no I/O, and is
// safe for concurrent use once constructed.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// The model can emit raw HTML inside its markdown; we let
			// goldmark pass it through and rely on the sanitization pass
			// below to neutralize it.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// RenderMarkdown expands raw model text as markdown and sanitizes the
// result. The sanitization pass runs strictly after markdown expansion:
// expansion can itself introduce active content from the model's raw text,
// so sanitizing first would not be sound.
func (r *Renderer) RenderMarkdown(raw string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(raw), &buf); err != nil {
		return "", errors.Wrap(err, "failed to convert markdown")
	}

	return strings.TrimSpace(r.policy.Sanitize(buf.String())), nil
}

// RenderUserText sanitizes user-authored text without ever expanding it as
// markup. Users can type markup-like syntax; it must be neutralized as
// literal text, not turned into active content.
func (r *Renderer) RenderUserText(raw string) string {
	return strings.TrimSpace(r.policy.Sanitize(raw))
}
