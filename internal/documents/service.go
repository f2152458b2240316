package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/sisl-bd/eshop/internal/quotations"
)

// Store loads quotations and records their generated document.
type Store interface {
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
	SetDocument(ctx context.Context, id int64, name string) error
}

// Service generates quotation documents and regenerates missing ones.
type Service struct {
	renderer *Renderer
	store    Store
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService wires the renderer to the quotation store.
func NewService(renderer *Renderer, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{renderer: renderer, store: store, logger: logger}
}

// Generate renders a new document for q and records its name.
func (s *Service) Generate(ctx context.Context, q *quotations.Quotation) (Document, error) {
	doc, err := s.renderer.Render(ctx, q)
	if err != nil {
		return Document{}, err
	}
	if err := s.store.SetDocument(ctx, q.ID, doc.Name); err != nil {
		return Document{}, fmt.Errorf("record quotation %d document: %w", q.ID, err)
	}
	q.DocumentName = doc.Name
	s.logger.Info("quotation document generated", slog.Int64("quotation_id", q.ID), slog.String("file", doc.Name))
	return doc, nil
}

// Locate resolves the recorded document of q without checking the disk.
func (s *Service) Locate(q *quotations.Quotation) (Document, bool) {
	if q == nil || q.DocumentName == "" {
		return Document{}, false
	}
	return s.renderer.Locate(q.DocumentName), true
}

type ensured struct {
	quotation *quotations.Quotation
	doc       Document
}

// Ensure returns the recorded document of a quotation, regenerating it when
// it was never written or the file has gone missing. Concurrent calls for
// the same quotation share one render.
func (s *Service) Ensure(ctx context.Context, id int64) (*quotations.Quotation, Document, error) {
	// The flight outlives the caller that started it.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		q, err := s.store.Get(detached, id)
		if err != nil {
			return nil, err
		}
		if doc, ok := s.Locate(q); ok && s.renderer.Exists(doc) {
			return ensured{quotation: q, doc: doc}, nil
		}
		if q.DocumentName != "" {
			s.logger.Warn("quotation document missing, regenerating",
				slog.Int64("quotation_id", id), slog.String("file", q.DocumentName))
		}
		doc, err := s.Generate(detached, q)
		if err != nil {
			return nil, err
		}
		return ensured{quotation: q, doc: doc}, nil
	})
	select {
	case <-ctx.Done():
		return nil, Document{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, Document{}, res.Err
		}
		out := res.Val.(ensured)
		return out.quotation, out.doc, nil
	}
}
