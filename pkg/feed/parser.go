package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/metrics"
	"github.com/alim08/partner_events/pkg/models"
	"github.com/alim08/partner_events/pkg/validation"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const (
	// RootTag is the only document root the parser reads events from.
	RootTag = "eventList"
	// SellModeOnline marks base events that are sold through the partner.
	SellModeOnline = "online"
)

// naiveLayout matches feed timestamps that carry no zone designator.
const naiveLayout = "2006-01-02T15:04:05.999999999"

type feedDocument struct {
	XMLName xml.Name
	Output  *feedOutput `xml:"output"`
}

type feedOutput struct {
	BaseEvents []feedBaseEvent `xml:"base_event"`
}

type feedBaseEvent struct {
	BaseEventID string      `xml:"base_event_id,attr"`
	Title       string      `xml:"title,attr"`
	SellMode    string      `xml:"sell_mode,attr"`
	Events      []feedEvent `xml:"event"`
}

type feedEvent struct {
	EventID string     `xml:"event_id,attr"`
	Start   string     `xml:"event_start_date,attr"`
	End     string     `xml:"event_end_date,attr"`
	Zones   []feedZone `xml:"zone"`
}

type feedZone struct {
	Price string `xml:"price,attr"`
}

// skipError explains why a single feed entry produced no event.
type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *skipError) Unwrap() error { return e.err }

var errNoZones = errors.New("event has no price zones")

// Parse decodes a feed document into events, in document order.
//
// A document whose root is not RootTag yields no events and no error. Base
// events not sold online are ignored. An entry that cannot produce a valid
// event (no zones, missing attributes, bad timestamps or prices) is logged and
// skipped without affecting the rest of the document. Only a document that
// cannot be decoded at all fails, with ErrMalformedXML.
func Parse(data []byte) ([]models.PartnerEvent, error) {
	var doc feedDocument
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		metrics.ParseErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	if err := expectEOF(dec); err != nil {
		metrics.ParseErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}

	if doc.XMLName.Local != RootTag {
		logger.Log.Warn("unexpected feed root, ignoring document", zap.String("root", doc.XMLName.Local))
		return []models.PartnerEvent{}, nil
	}
	if doc.Output == nil {
		return []models.PartnerEvent{}, nil
	}

	events := make([]models.PartnerEvent, 0, len(doc.Output.BaseEvents))
	for _, base := range doc.Output.BaseEvents {
		if base.SellMode != SellModeOnline {
			continue
		}
		if len(base.Events) == 0 {
			skip(base.BaseEventID, "", &skipError{reason: "missing_event", err: errors.New("base event has no event element")})
			continue
		}
		for _, ev := range base.Events {
			pe, err := buildEvent(base, ev)
			if err != nil {
				skip(base.BaseEventID, ev.EventID, err)
				continue
			}
			events = append(events, pe)
		}
	}
	return events, nil
}

// expectEOF rejects anything after the root element other than whitespace,
// comments and processing instructions.
func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return fmt.Errorf("unexpected text after root element at offset %d", dec.InputOffset())
			}
		default:
			return fmt.Errorf("unexpected content after root element at offset %d", dec.InputOffset())
		}
	}
}

func skip(baseEventID, eventID string, err error) {
	reason := "invalid"
	var se *skipError
	if errors.As(err, &se) {
		reason = se.reason
	}
	metrics.ParseSkipped.WithLabelValues(reason).Inc()
	logger.Log.Warn("skipping feed event",
		zap.String("base_event_id", baseEventID),
		zap.String("event_id", eventID),
		zap.String("reason", reason),
		zap.Error(err))
}

func buildEvent(base feedBaseEvent, ev feedEvent) (models.PartnerEvent, error) {
	if base.BaseEventID == "" || ev.EventID == "" || ev.Start == "" || ev.End == "" {
		return models.PartnerEvent{}, &skipError{reason: "missing_attributes", err: errors.New("required attribute is empty or absent")}
	}

	start, err := parseFeedTime(ev.Start)
	if err != nil {
		return models.PartnerEvent{}, &skipError{reason: "bad_timestamp", err: err}
	}
	end, err := parseFeedTime(ev.End)
	if err != nil {
		return models.PartnerEvent{}, &skipError{reason: "bad_timestamp", err: err}
	}

	minPrice, maxPrice, err := priceRange(ev.Zones)
	if err != nil {
		reason := "bad_price"
		if errors.Is(err, errNoZones) {
			reason = "no_zones"
		}
		return models.PartnerEvent{}, &skipError{reason: reason, err: err}
	}

	pe := models.PartnerEvent{
		ID:          strings.TrimSpace(ev.EventID),
		BaseEventID: strings.TrimSpace(base.BaseEventID),
		Title:       validation.SanitizeString(base.Title),
		Start:       start,
		End:         end,
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
	}
	if err := pe.Validate(); err != nil {
		return models.PartnerEvent{}, &skipError{reason: "invalid", err: err}
	}
	return pe, nil
}

// parseFeedTime reads an ISO-8601 instant. Values without a zone designator
// are feed wall-clock times, which are UTC.
func parseFeedTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func priceRange(zones []feedZone) (float64, float64, error) {
	if len(zones) == 0 {
		return 0, 0, errNoZones
	}
	minPrice, maxPrice := math.Inf(1), math.Inf(-1)
	for _, z := range zones {
		p, err := strconv.ParseFloat(strings.TrimSpace(z.Price), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("zone price %q: %w", z.Price, err)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return 0, 0, fmt.Errorf("zone price %q out of range", z.Price)
		}
		minPrice = math.Min(minPrice, p)
		maxPrice = math.Max(maxPrice, p)
	}
	return minPrice, maxPrice, nil
}
