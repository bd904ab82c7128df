// Package render turns assistant markdown into sanitized HTML.
package render

import (
	"bytes"
	"html"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var (
	once   sync.Once
	md     goldmark.Markdown
	policy *bluemonday.Policy
)

func setup() {
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	policy = bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
}

// Markdown renders src as HTML with unsafe markup removed. Raw HTML in src
// is escaped by goldmark and stripped again by the sanitizer.
func Markdown(src string) string {
	once.Do(setup)

	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		slog.Debug("render: markdown conversion failed, falling back to escaped text", "error", err)
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return policy.Sanitize(buf.String())
}
