// Package codec serialises resource lists for export and validates imports.
package codec

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"

	DefaultBasename = "resources"

	// isoMillis matches JavaScript's Date.prototype.toISOString.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

var csvHeader = []string{"Name", "URL", "Description", "Category", "Tags", "Created At"}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", errors.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Filename builds "<basename>-<YYYY-MM-DD>.<ext>".
func Filename(basename string, f Format, now time.Time) string {
	if basename == "" {
		basename = DefaultBasename
	}
	return basename + "-" + now.UTC().Format("2006-01-02") + "." + string(f)
}

func Write(w io.Writer, f Format, list []models.Resource) error {
	if f == FormatCSV {
		return WriteCSV(w, list)
	}
	return WriteJSON(w, list)
}

// WriteJSON writes the full list, ids and timestamps included, indented by two spaces.
func WriteJSON(w io.Writer, list []models.Resource) error {
	if list == nil {
		list = []models.Resource{}
	}
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal resources")
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "write json")
	}
	return nil
}

// WriteCSV writes the six fixed columns. Rows are separated by "\n" with no
// trailing newline.
func WriteCSV(w io.Writer, list []models.Resource) error {
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, strings.Join(csvHeader, ","))

	for _, r := range list {
		createdAt := ""
		if !r.CreatedAt.IsZero() {
			createdAt = r.CreatedAt.UTC().Format(isoMillis)
		}
		lines = append(lines, strings.Join([]string{
			escapeField(r.Name),
			escapeField(r.URL),
			escapeField(r.Description),
			escapeField(string(r.Category)),
			escapeField(strings.Join(r.Tags, ", ")),
			createdAt,
		}, ","))
	}

	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		return errors.Wrap(err, "write csv")
	}
	return nil
}

func escapeField(field string) string {
	if strings.ContainsAny(field, ",\"\n") {
		return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	return field
}
