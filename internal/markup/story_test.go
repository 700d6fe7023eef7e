package markup

import (
	"strings"
	"testing"
)

func TestStoryToHTML_Paragraphs(t *testing.T) {
	in := "# The Moon Ride\n\nKeanu climbed onto the **dinosaur**.\nIt was *very* large.\n\n---\n\nThe end."
	got := StoryToHTML(in)

	for _, want := range []string{
		"<h1>The Moon Ride</h1>",
		"<p>Keanu climbed onto the <b>dinosaur</b>.<br>It was <i>very</i> large.</p>",
		"<hr>",
		"<p>The end.</p>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestStoryToHTML_Empty(t *testing.T) {
	if got := StoryToHTML("  \n\n "); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestStoryToHTML_XSSPrevention(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		mustNot []string
		must    []string
	}{
		{
			name:    "plain script tag",
			input:   `<script>alert('xss')</script>`,
			mustNot: []string{"<script>", "</script>"},
			must:    []string{"&lt;script&gt;"},
		},
		{
			name:    "script in bold",
			input:   `**<script>alert('xss')</script>**`,
			mustNot: []string{"<script>"},
			must:    []string{"<b>", "&lt;script&gt;"},
		},
		{
			name:    "script in header",
			input:   `## <script>alert('xss')</script>`,
			mustNot: []string{"<script>"},
			must:    []string{"<h2>", "&lt;script&gt;"},
		},
		{
			name:    "img onerror attack",
			input:   `<img src=x onerror=alert('xss')>`,
			mustNot: []string{"<img"},
			must:    []string{"&lt;img"},
		},
		{
			name:  "ampersand escaping",
			input: `Tom & Jerry`,
			must:  []string{"Tom &amp; Jerry"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StoryToHTML(tt.input)
			for _, s := range tt.mustNot {
				if strings.Contains(got, s) {
					t.Errorf("output contains %q:\n%s", s, got)
				}
			}
			for _, s := range tt.must {
				if !strings.Contains(got, s) {
					t.Errorf("output missing %q:\n%s", s, got)
				}
			}
		})
	}
}

func TestStoryToHTML_EmojiAsteriskUntouched(t *testing.T) {
	got := StoryToHTML("Rating * * out of five")
	if strings.Contains(got, "<i>") {
		t.Errorf("blank italic should not be converted: %s", got)
	}
}

func TestPlainText(t *testing.T) {
	in := "## Chapter One\n\nA **brave** cat met a _tiny_ dog.\n***\nThey were ~~enemies~~ friends. snake_case_word stays."
	want := "Chapter One\n\nA brave cat met a tiny dog.\n\nThey were enemies friends. snake_case_word stays."

	if got := PlainText(in); got != want {
		t.Errorf("PlainText =\n%q\nwant\n%q", got, want)
	}
}
