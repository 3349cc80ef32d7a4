package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/model"
)

// RecordingSink saves artifacts through Next and records each one in the
// export history. A failed history write is logged and does not fail the
// export.
type RecordingSink struct {
	Next      export.Sink
	Store     *Store
	SessionID string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Save implements export.Sink.
func (r *RecordingSink) Save(a model.Artifact) (string, error) {
	path, err := r.Next.Save(a)
	if err != nil {
		return "", err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = r.Store.InsertExport(ctx, model.ExportRecord{
		SessionID: r.SessionID,
		Kind:      a.Kind,
		Page:      a.Page,
		Filename:  a.Filename,
		Path:      path,
		Rows:      a.Rows,
		CreatedAt: now(),
	})
	if err != nil && r.Logger != nil {
		r.Logger.Error("failed to record export", "file", a.Filename, "err", err)
	}
	return path, nil
}
