// Package exchange converts drafts to and from portable files (JSON, text and Markdown).
package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	apperrors "github.com/emlanis/secret-ai-writer/internal/errors"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/tidwall/jsonc"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

const (
	DefaultTitle        = "Untitled Draft"
	defaultFilenameStem = "draft"

	UnsupportedFormatMessage = "Unsupported file format. Please use .json, .txt, or .md files."
	NoContentMessage         = "Could not extract content from file"
)

var contentTypes = map[Format]string{
	FormatJSON:     "application/json",
	FormatText:     "text/plain",
	FormatMarkdown: "text/markdown",
}

// ParseFormat accepts json, txt or md (case-insensitive, optional leading dot).
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if _, ok := contentTypes[f]; !ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown export format %q (use json, txt or md)", s), nil)
	}
	return f, nil
}

// Draft is the exportable view of a draft.
type Draft struct {
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// FromRecord builds an exportable draft from a stored record.
func FromRecord(rec models.DraftRecord) Draft {
	return Draft{Title: rec.Title(), Content: rec.Content, Metadata: rec.Metadata}
}

// File is a rendered export.
type File struct {
	Filename    string
	ContentType string
	Body        []byte
}

type jsonDocument struct {
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	ExportedAt string                 `json:"exported_at"`
}

// Export renders d in the given format. now stamps exported_at and the file name.
func Export(d Draft, format Format, now time.Time) (File, error) {
	title := d.Title
	if title == "" {
		title = DefaultTitle
	}

	var body []byte
	switch format {
	case FormatJSON:
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{
				models.MetaTimestamp: now.UnixMilli(),
				models.MetaWordCount: WordCount(d.Content),
			}
		}
		doc := jsonDocument{
			Title:      title,
			Content:    d.Content,
			Metadata:   metadata,
			ExportedAt: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
		var err error
		body, err = json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return File{}, fmt.Errorf("encode export: %w", err)
		}
	case FormatText:
		body = []byte(title + "\n\n" + d.Content)
	case FormatMarkdown:
		body = []byte("# " + markdownTitle(title) + "\n\n" + d.Content)
	default:
		return File{}, apperrors.NewValidationError(fmt.Sprintf("unknown export format %q", format), nil)
	}

	return File{
		Filename:    filename(d.Title, format, now),
		ContentType: contentTypes[format],
		Body:        body,
	}, nil
}

func filename(title string, format Format, now time.Time) string {
	stem := sanitizeStem(title)
	if stem == "" {
		stem = defaultFilenameStem
	}
	return fmt.Sprintf("%s-%d.%s", stem, now.UnixMilli(), format)
}

// sanitizeStem keeps the title readable but safe as a single path segment.
func sanitizeStem(title string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '"' || r == ':':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(title))
	return strings.Trim(stem, ". ")
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Imported is the result of reading a draft file.
type Imported struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Import reads a draft file, choosing the parser by extension.
func Import(name string, data []byte) (Imported, error) {
	var (
		out Imported
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		out, err = importJSON(data)
	case ".txt":
		out = importLines(data, false)
	case ".md":
		out = importLines(data, true)
	default:
		return Imported{}, apperrors.NewImportError(UnsupportedFormatMessage, nil)
	}
	if err != nil {
		return Imported{}, err
	}
	if out.Content == "" {
		return Imported{}, apperrors.NewImportError(NoContentMessage, nil)
	}
	return out, nil
}

// importJSON tolerates comments and trailing commas.
func importJSON(data []byte) (Imported, error) {
	var doc struct {
		Title   interface{} `json:"title"`
		Content interface{} `json:"content"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return Imported{}, apperrors.NewImportError(
			fmt.Sprintf("Invalid JSON file: %v. Expected an object with \"title\" and \"content\" fields.", err), err)
	}
	title, _ := doc.Title.(string)
	content, ok := doc.Content.(string)
	if doc.Content != nil && !ok {
		return Imported{}, apperrors.NewImportError("Invalid JSON file: \"content\" must be a string.", nil)
	}
	return Imported{Title: title, Content: content}, nil
}

// importLines treats line 1 as the title, skips line 2 and keeps the rest as content.
func importLines(data []byte, markdown bool) Imported {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	title := lines[0]
	if markdown {
		title = headingText(title)
	}
	var content string
	if len(lines) > 2 {
		content = strings.Join(lines[2:], "\n")
	}
	return Imported{Title: title, Content: content}
}

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New()
	})
	return markdownParser
}

// markdownTitle escapes a trailing '#' so the heading has no closing sequence.
func markdownTitle(title string) string {
	if strings.HasSuffix(title, "#") {
		return title[:len(title)-1] + `\#`
	}
	return title
}

// headingText returns the raw source of an ATX heading without its markers; other lines are returned trimmed.
func headingText(line string) string {
	source := []byte(line)
	doc := getMarkdownParser().Parser().Parse(text.NewReader(source))

	heading, ok := doc.FirstChild().(*ast.Heading)
	if !ok {
		return strings.TrimSpace(line)
	}

	var buf bytes.Buffer
	lines := heading.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	title := strings.TrimSpace(buf.String())
	if strings.HasSuffix(title, `\#`) {
		title = title[:len(title)-2] + "#"
	}
	return title
}
