package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

const pgnSite = "cheese-arena"

// PGNInput is the session metadata rendered into headers.
type PGNInput struct {
	Rated       bool
	Category    domain.Category
	Round       int
	Date        time.Time
	White       string
	Black       string
	WhiteElo    int
	BlackElo    int
	TimeControl domain.TimeControl
	Result      domain.Result
	Reason      domain.Reason
	MovesSAN    []string
}

// BuildPGN renders a PGN game with the seven-tag roster plus rating, time
// control and termination tags. Movetext wraps before 80 columns.
func BuildPGN(in PGNInput) string {
	var b strings.Builder
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	date = date.UTC()
	event := "Casual " + string(in.Category) + " game"
	if in.Rated {
		event = "Rated " + string(in.Category) + " game"
	}
	round := in.Round
	if round <= 0 {
		round = 1
	}

	tag(&b, "Event", event)
	tag(&b, "Site", pgnSite)
	tag(&b, "Date", fmt.Sprintf("%04d.%02d.%02d", date.Year(), int(date.Month()), date.Day()))
	tag(&b, "Round", fmt.Sprint(round))
	tag(&b, "White", in.White)
	tag(&b, "Black", in.Black)
	tag(&b, "Result", string(in.Result))
	if in.WhiteElo > 0 {
		tag(&b, "WhiteElo", fmt.Sprint(in.WhiteElo))
	}
	if in.BlackElo > 0 {
		tag(&b, "BlackElo", fmt.Sprint(in.BlackElo))
	}
	tag(&b, "TimeControl", in.TimeControl.PGNTag())
	tag(&b, "Termination", termination(in.Reason))
	b.WriteString("\n")

	line := 0
	write := func(tok string) {
		if line > 0 && line+1+len(tok) > 79 {
			b.WriteString("\n")
			line = 0
		}
		if line > 0 {
			b.WriteString(" ")
			line++
		}
		b.WriteString(tok)
		line += len(tok)
	}
	for i, san := range in.MovesSAN {
		if i%2 == 0 {
			write(fmt.Sprintf("%d.", i/2+1))
		}
		write(strings.TrimSpace(san))
	}
	write(string(in.Result))
	b.WriteString("\n")
	return b.String()
}

func tag(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "[%s \"%s\"]\n", name, sanitizePGN(value))
}

func termination(r domain.Reason) string {
	switch r {
	case domain.ReasonTimeout:
		return "time forfeit"
	case domain.ReasonAbandoned:
		return "abandoned"
	case "":
		return "unterminated"
	default:
		return "normal"
	}
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
