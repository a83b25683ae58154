package services

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

// BatchResult summarises one page of a sweep.
type BatchResult struct {
	Processed  int    `json:"processed"`
	Succeeded  int    `json:"succeeded"`
	Changed    int    `json:"changed"`
	Failed     int    `json:"failed"`
	NextCursor string `json:"next_cursor"`
	Done       bool   `json:"done"`
}

// ItemFunc handles one entity of a sweep and reports whether it changed anything.
type ItemFunc func(ctx context.Context, id string) (bool, error)

// RunBatch applies fn to every id of one page. A failing or panicking item is
// logged and counted as failed; the rest of the page still runs. A page shorter
// than limit marks the sweep as done.
func RunBatch(ctx context.Context, log *logrus.Entry, ids []string, limit int, fn ItemFunc) BatchResult {
	res := BatchResult{Done: len(ids) < limit}
	for _, id := range ids {
		if ctx.Err() != nil {
			res.Done = false
			break
		}
		res.Processed++
		res.NextCursor = id

		changed, err := runItem(ctx, id, fn)
		if err != nil {
			res.Failed++
			log.WithField("entity_id", id).WithError(err).Error("batch item failed")
			continue
		}
		res.Succeeded++
		if changed {
			res.Changed++
		}
	}
	return res
}

func runItem(ctx context.Context, id string, fn ItemFunc) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gerrors.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}
