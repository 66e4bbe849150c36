package feed

import (
	"errors"
	"os"
	"testing"
	"time"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/feed.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestParse_Fixture(t *testing.T) {
	events, err := Parse(loadFixture(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// offline and zoneless entries are dropped, the two-occurrence base event yields two events
	wantIDs := []string{"291", "1642", "556", "557"}
	if len(events) != len(wantIDs) {
		t.Fatalf("got %d events; want %d: %+v", len(events), len(wantIDs), events)
	}
	for i, id := range wantIDs {
		if events[i].ID != id {
			t.Errorf("events[%d].ID = %q; want %q", i, events[i].ID, id)
		}
	}

	camela := events[0]
	if camela.BaseEventID != "291" || camela.Title != "Camela en concierto" {
		t.Errorf("identity = %q/%q", camela.BaseEventID, camela.Title)
	}
	if camela.MinPrice != 15 || camela.MaxPrice != 30 {
		t.Errorf("prices = %v/%v; want 15/30", camela.MinPrice, camela.MaxPrice)
	}
	wantStart := time.Date(2021, 6, 30, 21, 0, 0, 0, time.UTC)
	if !camela.Start.Equal(wantStart) || camela.Start.Location() != time.UTC {
		t.Errorf("start = %v; want %v in UTC", camela.Start, wantStart)
	}

	pantomima := events[1]
	if pantomima.MinPrice != 55 || pantomima.MaxPrice != 55 {
		t.Errorf("single zone prices = %v/%v; want 55/55", pantomima.MinPrice, pantomima.MaxPrice)
	}
	if !pantomima.End.Equal(time.Date(2021, 2, 10, 21, 30, 0, 0, time.UTC)) {
		t.Errorf("explicit-Z end = %v", pantomima.End)
	}

	if events[2].BaseEventID != "555" || events[3].BaseEventID != "555" {
		t.Errorf("occurrences should share base event 555")
	}
}

func TestParse_PriceOrdering(t *testing.T) {
	events, err := Parse(loadFixture(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range events {
		if e.MinPrice > e.MaxPrice {
			t.Errorf("event %s: min %v > max %v", e.ID, e.MinPrice, e.MaxPrice)
		}
	}
}

func TestParse_UnexpectedRoot(t *testing.T) {
	doc := `<planList><output><base_event base_event_id="1" sell_mode="online" title="x">
		<event event_id="1" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00">
		<zone price="1.00"/></event></base_event></output></planList>`

	events, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected root should not be an error, got %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %#v; want empty non-nil slice", events)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"truncated": `<eventList><output><base_event base_event_id="1"`,
		"garbage":   "not xml at all",
		"second root": `<eventList><output><base_event base_event_id="1" sell_mode="online" title="t">` +
			`<event event_id="1" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>` +
			`</base_event></output></eventList><eventList><broken`,
		"trailing element": `<eventList><output></output></eventList><output>`,
		"trailing text":    `<eventList><output></output></eventList>junk`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if !errors.Is(err, ErrMalformedXML) {
				t.Errorf("err = %v; want ErrMalformedXML", err)
			}
		})
	}
}

func TestParse_TrailingWhitespaceAndComments(t *testing.T) {
	doc := "<eventList><output></output></eventList>\n<!-- generated -->\n<?pi ok?>\n"
	events, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestParse_SkipsBadEntriesAndContinues(t *testing.T) {
	doc := `<eventList><output>
	<base_event base_event_id="1" sell_mode="online" title="no zones">
		<event event_id="1" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"/>
	</base_event>
	<base_event base_event_id="2" sell_mode="online" title="bad price">
		<event event_id="2" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="abc"/></event>
	</base_event>
	<base_event base_event_id="3" sell_mode="online" title="bad date">
		<event event_id="3" event_start_date="yesterday" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>
	</base_event>
	<base_event base_event_id="4" sell_mode="online" title="missing id">
		<event event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>
	</base_event>
	<base_event base_event_id="5" sell_mode="online" title="ends before start">
		<event event_id="5" event_start_date="2021-01-01T02:00:00" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>
	</base_event>
	<base_event base_event_id="6" sell_mode="online" title="negative price">
		<event event_id="6" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="-5"/></event>
	</base_event>
	<base_event base_event_id="7" sell_mode="online" title="no event"/>
	<base_event base_event_id="8" sell_mode="online" title="survivor">
		<event event_id="8" event_start_date="2021-01-01 00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="9.5"/><zone price="3"/></event>
	</base_event>
	</output></eventList>`

	events, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events; want only the survivor: %+v", len(events), events)
	}
	if events[0].ID != "8" || events[0].MinPrice != 3 || events[0].MaxPrice != 9.5 {
		t.Errorf("survivor = %+v", events[0])
	}
}

func TestParse_SellModeFilter(t *testing.T) {
	doc := `<eventList><output>
	<base_event base_event_id="1" sell_mode="offline" title="off">
		<event event_id="1" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>
	</base_event>
	<base_event base_event_id="2" sell_mode="Online" title="case differs">
		<event event_id="2" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>
	</base_event>
	<base_event base_event_id="3" sell_mode="online" title="on">
		<event event_id="3" event_start_date="2021-01-01T00:00:00" event_end_date="2021-01-01T01:00:00"><zone price="1"/></event>
	</base_event>
	</output></eventList>`

	events, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].BaseEventID != "3" {
		t.Errorf("events = %+v; want only base event 3", events)
	}
}

func TestParse_MissingOutput(t *testing.T) {
	events, err := Parse([]byte(`<eventList version="1.0"/>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %+v; want none", events)
	}
}

func TestParseFeedTime(t *testing.T) {
	want := time.Date(2021, 6, 30, 21, 0, 0, 0, time.UTC)
	cases := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2021-06-30T21:00:00", want, false},
		{"2021-06-30T21:00:00Z", want, false},
		{"2021-06-30 21:00:00", want, false},
		{"2021-06-30T23:00:00+02:00", want, false},
		{"2021-06-30T21:00:00.5", want.Add(500 * time.Millisecond), false},
		{"30/06/2021", time.Time{}, true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := parseFeedTime(c.in)
			if (err != nil) != c.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, c.wantErr)
			}
			if !c.wantErr && (!got.Equal(c.want) || got.Location() != time.UTC) {
				t.Errorf("parseFeedTime(%q) = %v; want %v UTC", c.in, got, c.want)
			}
		})
	}
}
