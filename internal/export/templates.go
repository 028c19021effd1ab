package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var topicTemplate = template.Must(template.New("topic.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"join":       strings.Join,
	"paragraphs": paragraphs,
}).ParseFS(templateFS, "templates/topic.html"))

// paragraphs splits response text on blank lines.
func paragraphs(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RenderTopicHTML renders the topic template with provided data
func RenderTopicHTML(topic Topic) (string, error) {
	var buf bytes.Buffer
	if err := topicTemplate.Execute(&buf, topic); err != nil {
		return "", err
	}
	return buf.String(), nil
}
