// Package markup renders the light markdown that chat models put in stories.
package markup

import (
	"regexp"
	"strings"
)

var (
	hrRegex          = regexp.MustCompile(`^(?:---+|\*\*\*+|___+)\s*$`)
	headerRegex      = regexp.MustCompile(`^(#{1,4}) (.+)$`)
	boldStarRegex    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRegex   = regexp.MustCompile(`__([^_]+)__`)
	italicStarRegex  = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUnderRegex = regexp.MustCompile(`(^|[\s(])_([^_\n]+)_`)
	strikeRegex      = regexp.MustCompile(`~~([^~]+)~~`)
)

// StoryToHTML converts story markdown to HTML paragraphs.
// Supported: at-line-start headers (#–####), horizontal rules, bold (** or __), italic (* or _), strikethrough (~~).
// All HTML in the input is escaped first.
func StoryToHTML(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var out strings.Builder
	for _, para := range paragraphs(escapeHTML(text)) {
		lines := strings.Split(para, "\n")
		var body []string
		flush := func() {
			if len(body) == 0 {
				return
			}
			out.WriteString("<p>")
			out.WriteString(inlineToHTML(strings.Join(body, "<br>")))
			out.WriteString("</p>\n")
			body = nil
		}
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if hrRegex.MatchString(trimmed) {
				flush()
				out.WriteString("<hr>\n")
				continue
			}
			if m := headerRegex.FindStringSubmatch(trimmed); m != nil {
				flush()
				tag := "h" + string(rune('0'+len(m[1])))
				out.WriteString("<" + tag + ">" + inlineToHTML(strings.TrimSpace(m[2])) + "</" + tag + ">\n")
				continue
			}
			body = append(body, trimmed)
		}
		flush()
	}
	return out.String()
}

// PlainText strips markdown markers, keeping the words and the paragraph breaks.
func PlainText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if hrRegex.MatchString(trimmed) {
			out = append(out, "")
			continue
		}
		if m := headerRegex.FindStringSubmatch(trimmed); m != nil {
			trimmed = m[2]
		}
		trimmed = boldStarRegex.ReplaceAllString(trimmed, "$1")
		trimmed = boldUnderRegex.ReplaceAllString(trimmed, "$1")
		trimmed = italicStarRegex.ReplaceAllStringFunc(trimmed, keepIfBlank(italicStarRegex, "$1"))
		trimmed = italicUnderRegex.ReplaceAllString(trimmed, "$1$2")
		trimmed = strikeRegex.ReplaceAllString(trimmed, "$1")
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// inlineToHTML converts inline markers. Input MUST already be HTML-escaped.
func inlineToHTML(s string) string {
	s = boldStarRegex.ReplaceAllString(s, "<b>$1</b>")
	s = boldUnderRegex.ReplaceAllString(s, "<b>$1</b>")
	s = italicStarRegex.ReplaceAllStringFunc(s, keepIfBlank(italicStarRegex, "<i>$1</i>"))
	s = italicUnderRegex.ReplaceAllString(s, "$1<i>$2</i>")
	s = strikeRegex.ReplaceAllString(s, "<s>$1</s>")
	return s
}

// keepIfBlank leaves matches with whitespace-only content (e.g. "* *") untouched.
func keepIfBlank(re *regexp.Regexp, template string) func(string) string {
	return func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) < 2 || strings.TrimSpace(sub[1]) == "" {
			return match
		}
		return re.ReplaceAllString(match, template)
	}
}

// paragraphs splits on blank lines, dropping empty ones.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range regexp.MustCompile(`\n\s*\n`).Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.Trim(p, "\n"))
		}
	}
	return out
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, "\"", "&quot;")
	return text
}
