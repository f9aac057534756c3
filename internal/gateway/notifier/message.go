package notifier

import (
	"fmt"
	"strings"
	"time"

	"cryptoprinter/internal/pkg/text"
)

// Telegram rejects messages above 4096 characters.
const maxMessageRunes = 3800

// Field is one aligned "label value" line inside a section.
type Field struct {
	Label string
	Value string
}

// MessageSection 表示通知中的一个段落，Fields 在前、Lines 在后。
type MessageSection struct {
	Title  string
	Fields []Field
	Lines  []string
}

// StructuredMessage 描述统一格式的 Telegram 推送。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown renders the header in plain Markdown and every non-empty
// section inside one fenced block so that columns stay aligned.
func (m StructuredMessage) RenderMarkdown() string {
	var parts []string
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		parts = append(parts, header)
	}
	var blocks []string
	for _, sec := range m.Sections {
		if body := sec.render(); body != "" {
			blocks = append(blocks, body)
		}
	}
	if len(blocks) > 0 {
		parts = append(parts, "```\n"+strings.Join(blocks, "\n\n")+"\n```")
	}
	var tail []string
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		tail = append(tail, unfence(footer))
	}
	if !m.Timestamp.IsZero() {
		tail = append(tail, "time: "+m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	if len(tail) > 0 {
		parts = append(parts, strings.Join(tail, "\n"))
	}
	return text.Truncate(strings.Join(parts, "\n\n"), maxMessageRunes)
}

func (s MessageSection) render() string {
	width := 0
	for _, f := range s.Fields {
		if n := len([]rune(f.Label)); n > width && strings.TrimSpace(f.Value) != "" {
			width = n
		}
	}
	var rows []string
	for _, f := range s.Fields {
		if v := strings.TrimSpace(f.Value); v != "" {
			rows = append(rows, fmt.Sprintf("- %-*s %s", width, f.Label, unfence(v)))
		}
	}
	for _, line := range s.Lines {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, "- "+unfence(line))
		}
	}
	if len(rows) == 0 {
		return ""
	}
	if title := strings.TrimSpace(s.Title); title != "" {
		rows = append([]string{unfence(title)}, rows...)
	}
	return strings.Join(rows, "\n")
}

// unfence keeps user text from closing the surrounding code block.
func unfence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
