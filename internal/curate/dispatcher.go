// Package curate saves individual feed items to the gallery. At most one
// save per image is in flight at a time; saves never touch the live buffer.
package curate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/imageshelf/internal/feed"
	"github.com/abelbrown/imageshelf/internal/gallery"
	"github.com/abelbrown/imageshelf/internal/otel"
)

// DefaultTimeout bounds a single save.
const DefaultTimeout = 30 * time.Second

var (
	// ErrValidation is returned when an item lacks an image URL or prompt.
	// No request is made.
	ErrValidation = errors.New("item cannot be saved")

	// ErrConflict is returned when a save for the same image is in flight.
	ErrConflict = errors.New("save already in progress")
)

// PersistError reports a failed create call. The item can be saved again.
type PersistError struct {
	ImageURL string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save %s: %v", e.ImageURL, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Creator persists one save request. gallery.Service and gallery.Client
// implement it.
type Creator interface {
	Create(ctx context.Context, req gallery.SaveRequest) (gallery.Record, error)
}

// TicketState is the progress of one save.
type TicketState int

const (
	InFlight TicketState = iota
	Succeeded
	Failed
)

func (s TicketState) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ticket tracks one save, keyed by image URL.
type Ticket struct {
	ImageURL string
	State    TicketState
	Started  time.Time
	Record   gallery.Record // set when Succeeded
	Err      error          // set when Failed
}

// Dispatcher runs saves against a Creator.
type Dispatcher struct {
	creator Creator
	timeout time.Duration
	events  otel.Component

	mu       sync.Mutex
	inflight map[string]*Ticket
}

// NewDispatcher creates a dispatcher. A non-positive timeout selects
// DefaultTimeout; a nil logger discards events.
func NewDispatcher(creator Creator, timeout time.Duration, logger *otel.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		creator:  creator,
		timeout:  timeout,
		events:   logger.Component("curate"),
		inflight: make(map[string]*Ticket),
	}
}

// Save persists item and blocks until the outcome is known. The returned
// ticket is resolved: Succeeded with the created record, or Failed with
// the same error that is returned.
//
// Errors: ErrValidation when ImageURL or Prompt is empty, ErrConflict when
// a save of the same image is in flight, *PersistError when the create
// call fails.
func (d *Dispatcher) Save(ctx context.Context, item feed.Item) (Ticket, error) {
	if strings.TrimSpace(item.ImageURL) == "" {
		err := fmt.Errorf("%w: missing image URL", ErrValidation)
		return Ticket{State: Failed, Err: err}, err
	}
	if strings.TrimSpace(item.Prompt) == "" {
		err := fmt.Errorf("%w: missing prompt", ErrValidation)
		return Ticket{ImageURL: item.ImageURL, State: Failed, Err: err}, err
	}

	t, err := d.acquire(item.ImageURL)
	if err != nil {
		d.events.Emit(otel.Event{Kind: otel.KindSaveConflict, Level: otel.LevelWarn, ImageURL: item.ImageURL})
		return Ticket{ImageURL: item.ImageURL, State: InFlight}, err
	}
	defer d.release(item.ImageURL)

	d.events.Emit(otel.Event{Kind: otel.KindSaveStart, Level: otel.LevelInfo, ImageURL: item.ImageURL})

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	rec, err := d.creator.Create(ctx, gallery.SaveRequest{
		ImageURL: item.ImageURL,
		Prompt:   item.Prompt,
		Seed:     item.Seed,
	})
	dur := time.Since(t.Started)

	if err != nil {
		perr := &PersistError{ImageURL: item.ImageURL, Err: err}
		d.resolve(t, Failed, gallery.Record{}, perr)
		d.events.Emit(otel.Event{Kind: otel.KindSaveError, Level: otel.LevelError, ImageURL: item.ImageURL, Err: err.Error(), Dur: dur})
		return d.snapshot(t), perr
	}

	d.resolve(t, Succeeded, rec, nil)
	d.events.Emit(otel.Event{Kind: otel.KindSaveComplete, Level: otel.LevelInfo, ImageURL: item.ImageURL, Count: len(rec.TagIDs), Dur: dur})
	return d.snapshot(t), nil
}

// InFlight reports whether a save of imageURL is in progress.
func (d *Dispatcher) InFlight(imageURL string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[imageURL]
	return ok
}

// Pending returns the in-flight tickets, oldest first.
func (d *Dispatcher) Pending() []Ticket {
	d.mu.Lock()
	out := make([]Ticket, 0, len(d.inflight))
	for _, t := range d.inflight {
		out = append(out, *t)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func (d *Dispatcher) acquire(imageURL string) (*Ticket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[imageURL]; ok {
		return nil, fmt.Errorf("%w: %s", ErrConflict, imageURL)
	}
	t := &Ticket{ImageURL: imageURL, State: InFlight, Started: time.Now()}
	d.inflight[imageURL] = t
	return t, nil
}

func (d *Dispatcher) resolve(t *Ticket, state TicketState, rec gallery.Record, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t.State = state
	t.Record = rec
	t.Err = err
}

func (d *Dispatcher) snapshot(t *Ticket) Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *t
}

func (d *Dispatcher) release(imageURL string) {
	d.mu.Lock()
	delete(d.inflight, imageURL)
	d.mu.Unlock()
}
