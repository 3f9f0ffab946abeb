package codec

import (
	"encoding/json"
	"fmt"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

var (
	ErrMalformed   = &ImportError{Message: "Failed to parse JSON file"}
	ErrNotAnArray  = &ImportError{Message: "Invalid format: Expected an array of resources"}
	requiredFields = []struct {
		key   string
		label string
	}{
		{"name", "name"},
		{"url", "URL"},
		{"description", "description"},
		{"category", "category"},
	}
)

// ImportError rejects a whole import. Position is the 1-based index of the
// first offending element, zero when the payload itself is unusable.
type ImportError struct {
	Position int
	Message  string
}

func (e *ImportError) Error() string {
	return e.Message
}

// Item is one validated import element. Category is passed through as text;
// membership in the closed set is checked by the store on create.
type Item struct {
	Name        string
	URL         string
	Description string
	Category    string
	Tags        models.Tags
}

// ParseImport decodes and validates the payload. Nothing is returned unless
// every element is valid.
func ParseImport(data []byte) ([]Item, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrMalformed
	}

	elements, ok := raw.([]interface{})
	if !ok {
		return nil, ErrNotAnArray
	}

	items := make([]Item, 0, len(elements))
	for i, el := range elements {
		item, err := parseItem(i+1, el)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseItem(pos int, el interface{}) (Item, error) {
	obj, _ := el.(map[string]interface{})

	values := make(map[string]string, len(requiredFields))
	for _, f := range requiredFields {
		s, ok := obj[f.key].(string)
		if !ok || s == "" {
			return Item{}, &ImportError{
				Position: pos,
				Message:  fmt.Sprintf("Resource %d: Missing or invalid %s", pos, f.label),
			}
		}
		values[f.key] = s
	}

	rawTags, ok := obj["tags"].([]interface{})
	if !ok {
		return Item{}, &ImportError{
			Position: pos,
			Message:  fmt.Sprintf("Resource %d: Tags must be an array", pos),
		}
	}

	tags := make(models.Tags, 0, len(rawTags))
	for _, t := range rawTags {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		} else {
			tags = append(tags, fmt.Sprint(t))
		}
	}

	return Item{
		Name:        values["name"],
		URL:         values["url"],
		Description: values["description"],
		Category:    values["category"],
		Tags:        tags,
	}, nil
}
