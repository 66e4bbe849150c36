package models

import (
	"fmt"
	"time"

	"github.com/alim08/partner_events/pkg/validation"
)

// Layouts used for the date and time-of-day parts of an EventSummary.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05.999999"
)

// PartnerEvent is one sellable occurrence parsed from the partner feed.
// Instants are UTC and prices derive from the occurrence's zones.
type PartnerEvent struct {
	ID          string    `json:"id" validate:"required"`
	BaseEventID string    `json:"base_event_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Start       time.Time `json:"start" validate:"required,utc"`
	End         time.Time `json:"end" validate:"required,utc,gtefield=Start"`
	MinPrice    float64   `json:"min_price" validate:"price"`
	MaxPrice    float64   `json:"max_price" validate:"price,gtefield=MinPrice"`
}

// Validate validates the PartnerEvent struct
func (e PartnerEvent) Validate() error {
	if errors := validation.ValidateStruct(e); len(errors) > 0 {
		return errors
	}
	return nil
}

// Key returns the cache identity of the event.
func (e PartnerEvent) Key() EventKey {
	return EventKey{BaseEventID: e.BaseEventID, EventID: e.ID}
}

// EventKey identifies one occurrence across ingestion cycles.
type EventKey struct {
	BaseEventID string
	EventID     string
}

func (k EventKey) String() string {
	return k.BaseEventID + ":" + k.EventID
}

// EventSummary is the caller-facing view of a cached event.
type EventSummary struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	StartDate string  `json:"start_date"`
	StartTime string  `json:"start_time"`
	EndDate   string  `json:"end_date"`
	EndTime   string  `json:"end_time"`
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
}

// NewEventSummary splits the instants into UTC date and time-of-day parts.
func NewEventSummary(id, title string, start, end time.Time, minPrice, maxPrice float64) EventSummary {
	start, end = start.UTC(), end.UTC()
	return EventSummary{
		ID:        id,
		Title:     title,
		StartDate: start.Format(DateLayout),
		StartTime: start.Format(TimeLayout),
		EndDate:   end.Format(DateLayout),
		EndTime:   end.Format(TimeLayout),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
	}
}

// Window is an inclusive [From, To] range of UTC instants used both to
// select events for storage and to answer queries.
type Window struct {
	From time.Time `json:"starts_at" validate:"required,utc"`
	To   time.Time `json:"ends_at" validate:"required,utc,gtefield=From"`
}

// NewWindow normalizes both bounds to UTC.
func NewWindow(from, to time.Time) Window {
	return Window{From: from.UTC(), To: to.UTC()}
}

// Contains reports whether [start, end] lies entirely inside the window.
func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.From) && !end.After(w.To)
}

// Validate validates the Window struct
func (w Window) Validate() error {
	if errors := validation.ValidateStruct(w); len(errors) > 0 {
		return errors
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
}
