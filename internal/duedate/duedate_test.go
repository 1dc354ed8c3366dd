package duedate

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/onyx/internal/apperr"
)

var base = time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC) // a Thursday

func TestParse_ISO(t *testing.T) {
	p := New(nil)
	got, err := p.Parse("2024-06-01", base)
	if err != nil || got != (Due{Date: "2024-06-01"}) {
		t.Fatalf("got %+v, %v", got, err)
	}
	got, err = p.Parse("2024-06-01 09:15", base)
	if err != nil || got != (Due{Date: "2024-06-01", Time: "09:15"}) {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestParse_Relative(t *testing.T) {
	p := New(nil)
	got, err := p.Parse("tomorrow", base)
	if err != nil {
		t.Fatal(err)
	}
	if got != (Due{Date: "2024-05-03"}) {
		t.Errorf("tomorrow = %+v", got)
	}

	got, err = p.Parse("tomorrow at 5pm", base)
	if err != nil {
		t.Fatal(err)
	}
	if got != (Due{Date: "2024-05-03", Time: "17:00"}) {
		t.Errorf("tomorrow at 5pm = %+v", got)
	}
}

func TestParse_Location(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*3600)
	// 10:30 UTC is already 00:30 on May 3rd at UTC+14.
	got, err := New(loc).Parse("tomorrow", base)
	if err != nil {
		t.Fatal(err)
	}
	if got.Date != "2024-05-04" {
		t.Errorf("tomorrow in UTC+14 = %+v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	p := New(nil)
	for _, in := range []string{"", "   ", "qwerty"} {
		if _, err := p.Parse(in, base); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalid", in, err)
		}
	}
}
