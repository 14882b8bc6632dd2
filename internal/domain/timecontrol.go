package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Category is the speed bucket a time control falls into.
type Category string

const (
	Bullet    Category = "bullet"
	Blitz     Category = "blitz"
	Rapid     Category = "rapid"
	Classical Category = "classical"
)

var Categories = []Category{Bullet, Blitz, Rapid, Classical}

// TimeControl is "<minutes>+<increment seconds>", e.g. "5+3".
// String is canonical, so two requests compare equal iff their strings do.
type TimeControl struct {
	BaseSeconds      float64
	IncrementSeconds float64
}

func ParseTimeControl(s string) (TimeControl, error) {
	raw := strings.TrimSpace(s)
	base, inc, ok := strings.Cut(raw, "+")
	if !ok {
		return TimeControl{}, fmt.Errorf("time control %q: want <minutes>+<increment>", s)
	}
	minutes, err := strconv.ParseFloat(strings.TrimSpace(base), 64)
	if err != nil || minutes <= 0 {
		return TimeControl{}, fmt.Errorf("time control %q: bad base", s)
	}
	incSec, err := strconv.ParseFloat(strings.TrimSpace(inc), 64)
	if err != nil || incSec < 0 {
		return TimeControl{}, fmt.Errorf("time control %q: bad increment", s)
	}
	return TimeControl{BaseSeconds: minutes * 60, IncrementSeconds: incSec}, nil
}

func MustTimeControl(s string) TimeControl {
	tc, err := ParseTimeControl(s)
	if err != nil {
		panic(err)
	}
	return tc
}

func (tc TimeControl) String() string {
	return strconv.FormatFloat(tc.BaseSeconds/60, 'f', -1, 64) + "+" + strconv.FormatFloat(tc.IncrementSeconds, 'f', -1, 64)
}

// PGNTag renders the PGN TimeControl header value ("300+3").
func (tc TimeControl) PGNTag() string {
	return strconv.FormatFloat(tc.BaseSeconds, 'f', -1, 64) + "+" + strconv.FormatFloat(tc.IncrementSeconds, 'f', -1, 64)
}

// Category uses the estimated game length base + 40*increment.
func (tc TimeControl) Category() Category {
	est := tc.BaseSeconds + 40*tc.IncrementSeconds
	switch {
	case est < 180:
		return Bullet
	case est < 480:
		return Blitz
	case est < 1500:
		return Rapid
	default:
		return Classical
	}
}
