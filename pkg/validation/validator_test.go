package validation

import (
	"math"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name  string    `validate:"required"`
	Price float64   `validate:"price"`
	Max   float64   `validate:"price,gtefield=Price"`
	At    time.Time `validate:"required,utc"`
}

func TestValidateStruct(t *testing.T) {
	utc := time.Date(2021, 5, 1, 17, 32, 28, 0, time.UTC)
	cases := []struct {
		name      string
		in        sample
		wantField string
	}{
		{"valid", sample{Name: "a", Price: 1, Max: 2, At: utc}, ""},
		{"zero prices", sample{Name: "a", At: utc}, ""},
		{"missing name", sample{Price: 1, Max: 1, At: utc}, "Name"},
		{"negative price", sample{Name: "a", Price: -1, Max: 1, At: utc}, "Price"},
		{"nan price", sample{Name: "a", Price: math.NaN(), Max: 1, At: utc}, "Price"},
		{"max below min", sample{Name: "a", Price: 5, Max: 1, At: utc}, "Max"},
		{"non-utc instant", sample{Name: "a", At: utc.In(time.FixedZone("CEST", 2*3600))}, "At"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			errs := ValidateStruct(c.in)
			if c.wantField == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatalf("expected error on %s, got none", c.wantField)
			}
			if errs[0].Field != c.wantField {
				t.Errorf("field = %q; want %q", errs[0].Field, c.wantField)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "A", Message: "A is required"},
		{Field: "B", Message: "B must be a non-negative price"},
	}
	got := errs.Error()
	if !strings.Contains(got, "A is required") || !strings.Contains(got, "; ") {
		t.Errorf("Error() = %q", got)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("empty ValidationErrors should render as empty string")
	}
}

func TestSanitizeString(t *testing.T) {
	in := "  Camela\x00 en concierto\x07 "
	if got := SanitizeString(in); got != "Camela en concierto" {
		t.Errorf("SanitizeString = %q", got)
	}
}
