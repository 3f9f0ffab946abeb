package service

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/codec"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

type ImportResult struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
}

// Transfer moves whole collections in and out through the codec.
type Transfer struct {
	resources *Resources
	metrics   metrics.Recorder
	logger    *zap.SugaredLogger
}

func NewTransfer(resources *Resources, rec metrics.Recorder, l *zap.SugaredLogger) *Transfer {
	return &Transfer{
		resources: resources,
		metrics:   rec,
		logger:    l,
	}
}

// Export writes the user's full collection.
func (t *Transfer) Export(ctx context.Context, userID uint64, w io.Writer, f codec.Format) error {
	list, err := t.resources.Snapshot(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load resources")
	}
	return codec.Write(w, f, list)
}

// Import rejects the payload as a whole when any element is invalid.
// Otherwise every element is created on its own; failures are counted and
// nothing is rolled back.
func (t *Transfer) Import(ctx context.Context, userID uint64, data []byte) (ImportResult, error) {
	items, err := codec.ParseImport(data)
	if err != nil {
		return ImportResult{}, err
	}

	list := make([]models.ResourceFields, len(items))
	for i, item := range items {
		list[i] = models.ResourceFields{
			Name:        item.Name,
			URL:         item.URL,
			Description: item.Description,
			Category:    models.Category(item.Category),
			Tags:        item.Tags,
		}
	}

	imported, err := t.resources.CreateMany(ctx, userID, list)
	if err != nil {
		t.logger.Warnw("import finished with failures",
			"user_id", userID, "total", len(list), "imported", imported, "error", err)
	}
	t.metrics.ImportRecorded(imported, len(list)-imported)

	return ImportResult{Total: len(list), Imported: imported}, nil
}
