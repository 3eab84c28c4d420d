package exchange

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/emlanis/secret-ai-writer/internal/errors"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestExportFormats(t *testing.T) {
	d := Draft{Title: "Notes", Content: "line one\nline two", Metadata: map[string]interface{}{"word_count": 4}}

	txt, err := Export(d, FormatText, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "Notes\n\nline one\nline two", string(txt.Body))
	assert.Equal(t, "text/plain", txt.ContentType)
	assert.Equal(t, "Notes-1748779200000.txt", txt.Filename)

	md, err := Export(d, FormatMarkdown, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\nline one\nline two", string(md.Body))
	assert.Equal(t, "text/markdown", md.ContentType)
	assert.Equal(t, "Notes-1748779200000.md", md.Filename)

	js, err := Export(d, FormatJSON, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "application/json", js.ContentType)
	assert.Contains(t, string(js.Body), "\n  \"title\": \"Notes\"")
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(js.Body, &doc))
	assert.Equal(t, "Notes", doc["title"])
	assert.Equal(t, "line one\nline two", doc["content"])
	assert.Equal(t, "2025-06-01T12:00:00.000Z", doc["exported_at"])
	assert.Equal(t, float64(4), doc["metadata"].(map[string]interface{})["word_count"])
}

func TestExportDefaults(t *testing.T) {
	f, err := Export(Draft{Content: "one two three"}, FormatJSON, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "draft-1748779200000.json", f.Filename)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Body, &doc))
	assert.Equal(t, DefaultTitle, doc["title"])
	meta := doc["metadata"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["word_count"])
	assert.Equal(t, float64(exportTime.UnixMilli()), meta["timestamp"])

	md, err := Export(Draft{Content: "x"}, FormatMarkdown, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "# Untitled Draft\n\nx", string(md.Body))
}

func TestExportSanitizesFilename(t *testing.T) {
	f, err := Export(Draft{Title: "../a/b", Content: "x"}, FormatText, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "_a_b-1748779200000.txt", f.Filename)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, ".MD": FormatMarkdown, " txt ": FormatText} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestImportRoundTrips(t *testing.T) {
	d := Draft{Title: "Round Trip", Content: "first\n\nsecond"}
	for _, format := range []Format{FormatJSON, FormatText, FormatMarkdown} {
		t.Run(string(format), func(t *testing.T) {
			f, err := Export(d, format, exportTime)
			require.NoError(t, err)

			got, err := Import(f.Filename, f.Body)
			require.NoError(t, err)
			assert.Equal(t, d.Title, got.Title)
			assert.Equal(t, d.Content, got.Content)
		})
	}
}

func TestMarkdownTitleRoundTrip(t *testing.T) {
	titles := []string{
		"Plan *v2*",
		"see [docs](x)",
		"a `code` b",
		"Release 1.0 #",
		"C#",
		`ends with \#`,
		"#",
	}
	for _, title := range titles {
		t.Run(title, func(t *testing.T) {
			f, err := Export(Draft{Title: title, Content: "body"}, FormatMarkdown, exportTime)
			require.NoError(t, err)

			got, err := Import(f.Filename, f.Body)
			require.NoError(t, err)
			assert.Equal(t, title, got.Title)
			assert.Equal(t, "body", got.Content)
		})
	}
}

func TestImportMarkdownClosingSequence(t *testing.T) {
	got, err := Import("n.md", []byte("## Closed heading ##\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "Closed heading", got.Title)
}

func TestImportLenientJSON(t *testing.T) {
	data := []byte(`{
		// exported by hand
		"title": "Hand",
		"content": "body",
	}`)
	got, err := Import("x.JSON", data)
	require.NoError(t, err)
	assert.Equal(t, Imported{Title: "Hand", Content: "body"}, got)
}

func TestImportMarkdownHeading(t *testing.T) {
	got, err := Import("n.md", []byte("## A *styled* `title`\n\nbody\nmore"))
	require.NoError(t, err)
	assert.Equal(t, "A *styled* `title`", got.Title)
	assert.Equal(t, "body\nmore", got.Content)

	got, err = Import("n.md", []byte("Plain title\r\n\r\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "Plain title", got.Title)
	assert.Equal(t, "body", got.Content)
}

func TestImportTextKeepsTitleVerbatim(t *testing.T) {
	got, err := Import("n.txt", []byte("# not a heading here\nignored\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "# not a heading here", got.Title)
	assert.Equal(t, "body", got.Content)
}

func TestImportErrors(t *testing.T) {
	cases := []struct {
		name, file, body, msg string
	}{
		{"unsupported", "draft.pdf", "x", UnsupportedFormatMessage},
		{"no extension", "draft", "x", UnsupportedFormatMessage},
		{"short text", "a.txt", "only a title", NoContentMessage},
		{"empty content json", "a.json", `{"title":"t","content":""}`, NoContentMessage},
		{"missing content json", "a.json", `{"title":"t"}`, NoContentMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Import(tc.file, []byte(tc.body))
			require.Error(t, err)
			assert.True(t, apperrors.IsImportError(err))
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.msg, appErr.Message)
		})
	}

	_, err := Import("a.json", []byte(`{"title": `))
	require.Error(t, err)
	assert.True(t, apperrors.IsImportError(err))
	assert.Contains(t, err.Error(), "Invalid JSON file")

	_, err = Import("a.json", []byte(`{"content": 42}`))
	assert.True(t, apperrors.IsImportError(err))
}

func TestFromRecord(t *testing.T) {
	rec := models.DraftRecord{ID: "draft_1_abcdefg", Content: "c", Metadata: map[string]interface{}{"title": "T"}}
	d := FromRecord(rec)
	assert.Equal(t, "T", d.Title)
	assert.Equal(t, "c", d.Content)
}
