package render

import (
	"strings"
	"testing"
)

func TestMarkdownFormatting(t *testing.T) {
	out := Markdown("**Lift** is produced by the *wing*.\n\n- Bernoulli\n- Newton")

	for _, want := range []string{"<strong>Lift</strong>", "<em>wing</em>", "<li>Bernoulli</li>", "<ul>"} {
		if !strings.Contains(out, want) {
			t.Errorf("Markdown() = %q, want it to contain %q", out, want)
		}
	}
}

func TestMarkdownStripsScripts(t *testing.T) {
	out := Markdown("hello <script>alert(1)</script> [x](javascript:alert(1))")

	if strings.Contains(out, "<script") {
		t.Errorf("script tag survived: %q", out)
	}
	if strings.Contains(out, "javascript:") {
		t.Errorf("javascript link survived: %q", out)
	}
}

func TestMarkdownCodeAndTables(t *testing.T) {
	out := Markdown("```go\nfmt.Println(1)\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")

	if !strings.Contains(out, `<code class="language-go">`) {
		t.Errorf("code class missing: %q", out)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("table missing: %q", out)
	}
}

func TestMarkdownExternalLinks(t *testing.T) {
	out := Markdown("[FAA](https://www.faa.gov)")

	if !strings.Contains(out, "nofollow") {
		t.Errorf("nofollow missing: %q", out)
	}
	if !strings.Contains(out, `target="_blank"`) {
		t.Errorf("target blank missing: %q", out)
	}
}
