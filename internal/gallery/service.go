package gallery

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/abelbrown/imageshelf/internal/otel"
)

// Service creates gallery records from save requests.
type Service struct {
	catalog TagCatalog
	writer  RecordWriter
	events  otel.Component
	autoTag atomic.Bool

	now func() time.Time // for tests
}

// NewService creates a service with auto-tagging enabled.
// A nil logger discards events.
func NewService(catalog TagCatalog, writer RecordWriter, logger *otel.Logger) *Service {
	s := &Service{
		catalog: catalog,
		writer:  writer,
		events:  logger.Component("gallery"),
		now:     time.Now,
	}
	s.autoTag.Store(true)
	return s
}

// SetAutoTag switches prompt-based tagging on or off.
func (s *Service) SetAutoTag(on bool) {
	s.autoTag.Store(on)
}

// Create validates req, matches tags against the prompt and stores a new
// Active record dated today (UTC). A failing tag lookup is logged and the
// record is created without tags.
func (s *Service) Create(ctx context.Context, req SaveRequest) (Record, error) {
	if err := req.Validate(); err != nil {
		return Record{}, err
	}

	start := time.Now()
	rec := Record{
		Title:     Title(req.Prompt),
		ImageURL:  req.ImageURL,
		Prompt:    req.Prompt,
		Seed:      req.Seed,
		Status:    StatusActive,
		TagIDs:    s.matchTags(ctx, req.Prompt),
		CreatedAt: s.now().UTC().Format(time.DateOnly),
	}

	out, err := s.writer.InsertRecord(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("insert image: %w", err)
	}

	s.events.Emit(otel.Event{
		Kind:     otel.KindGalleryCreate,
		Level:    otel.LevelInfo,
		ImageURL: out.ImageURL,
		Count:    len(out.TagIDs),
		Dur:      time.Since(start),
	})
	return out, nil
}

func (s *Service) matchTags(ctx context.Context, prompt string) []string {
	if !s.autoTag.Load() {
		return nil
	}
	tags, err := s.catalog.ListTags(ctx, TagLimit)
	if err != nil {
		s.events.Fail(otel.KindTagLookupError, err, otel.Event{})
		return nil
	}
	return MatchTags(prompt, tags)
}
