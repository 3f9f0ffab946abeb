package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

func sample() []models.Resource {
	edited := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	return []models.Resource{
		{
			ID:          "a1",
			Name:        "MDN Web Docs",
			URL:         "https://developer.mozilla.org",
			Description: `He said "hi", yes`,
			Category:    models.CategoryDocumentation,
			Tags:        models.Tags{"html", "css"},
			CreatedAt:   time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC),
			UpdatedAt:   &edited,
		},
		{
			ID:          "b2",
			Name:        "Plain",
			URL:         "https://example.com",
			Description: "line one\nline two",
			Category:    models.CategoryUIUX,
			Tags:        models.Tags{},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	want := strings.Join([]string{
		"Name,URL,Description,Category,Tags,Created At",
		`MDN Web Docs,https://developer.mozilla.org,"He said ""hi"", yes",Documentation,"html, css",2024-03-01T12:30:45.123Z`,
		"Plain,https://example.com,\"line one\nline two\",UI/UX,,",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "Name,URL,Description,Category,Tags,Created At", buf.String())
}

func TestEscapeField(t *testing.T) {
	assert.Equal(t, `"He said ""hi"", yes"`, escapeField(`He said "hi", yes`))
	assert.Equal(t, "plain", escapeField("plain"))
	assert.Equal(t, " leading space", escapeField(" leading space"))
	assert.Equal(t, "\"a\nb\"", escapeField("a\nb"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))

	assert.True(t, strings.HasPrefix(buf.String(), "[\n  {\n    \"id\": \"a1\""))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "2024-03-01T12:30:45.123Z", decoded[0]["createdAt"])
	assert.Contains(t, decoded[0], "updatedAt")
	assert.NotContains(t, decoded[1], "updatedAt")

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]", buf.String())
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "resources-2026-10-16.json", Filename("", FormatJSON, now))
	assert.Equal(t, "backup-2026-10-16.csv", Filename("backup", FormatCSV, now))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv", f.ContentType())

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestParseImport_Valid(t *testing.T) {
	items, err := ParseImport([]byte(`[
		{"name": "A", "url": "http://x", "description": "d", "category": "Tools", "tags": []},
		{"name": "B", "url": "http://y", "description": "e", "category": "Whatever", "tags": ["go", 3, true], "id": "ignored"}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, Item{Name: "A", URL: "http://x", Description: "d", Category: "Tools", Tags: models.Tags{}}, items[0])
	assert.Equal(t, "Whatever", items[1].Category)
	assert.Equal(t, models.Tags{"go", "3", "true"}, items[1].Tags)
}

func TestParseImport_Rejected(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		position int
		message  string
	}{
		{
			name:    "not json",
			payload: `{nope`,
			message: "Failed to parse JSON file",
		},
		{
			name:    "not an array",
			payload: `{"name": "A"}`,
			message: "Invalid format: Expected an array of resources",
		},
		{
			name: "second element has empty name",
			payload: `[
				{"name": "A", "url": "http://x", "description": "d", "category": "Tools", "tags": []},
				{"name": "", "url": "http://x", "description": "d", "category": "Tools", "tags": []}
			]`,
			position: 2,
			message:  "Resource 2: Missing or invalid name",
		},
		{
			name:     "url wrong type",
			payload:  `[{"name": "A", "url": 5, "description": "d", "category": "Tools", "tags": []}]`,
			position: 1,
			message:  "Resource 1: Missing or invalid URL",
		},
		{
			name:     "missing description",
			payload:  `[{"name": "A", "url": "u", "category": "Tools", "tags": []}]`,
			position: 1,
			message:  "Resource 1: Missing or invalid description",
		},
		{
			name:     "missing category",
			payload:  `[{"name": "A", "url": "u", "description": "d", "tags": []}]`,
			position: 1,
			message:  "Resource 1: Missing or invalid category",
		},
		{
			name:     "tags not an array",
			payload:  `[{"name": "A", "url": "u", "description": "d", "category": "Tools", "tags": "a,b"}]`,
			position: 1,
			message:  "Resource 1: Tags must be an array",
		},
		{
			name:     "element not an object",
			payload:  `[{"name": "A", "url": "u", "description": "d", "category": "Tools", "tags": []}, 7, {"name": ""}]`,
			position: 2,
			message:  "Resource 2: Missing or invalid name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, err := ParseImport([]byte(tc.payload))
			assert.Nil(t, items)

			var ie *ImportError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tc.position, ie.Position)
			assert.Equal(t, tc.message, ie.Error())
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	list := sample()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, list))

	items, err := ParseImport(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, items, len(list))

	for i, r := range list {
		assert.Equal(t, Item{
			Name:        r.Name,
			URL:         r.URL,
			Description: r.Description,
			Category:    string(r.Category),
			Tags:        r.Tags,
		}, items[i])
	}
}
