package matchmaking

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

func entry(user string, rating int, tc string, rated bool, at int) *Entry {
	return &Entry{
		Actor:       domain.Actor{ConnID: "c-" + user, Identity: domain.Identity{UserID: user}},
		Rating:      rating,
		TimeControl: domain.MustTimeControl(tc),
		Rated:       rated,
		EnqueuedAt:  time.Unix(int64(at), 0),
	}
}

func users(pairs [][2]*Entry) [][2]string {
	out := make([][2]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, [2]string{p[0].UserID(), p[1].UserID()})
	}
	return out
}

func TestPair(t *testing.T) {
	cases := []struct {
		name    string
		entries []*Entry
		want    [][2]string
	}{
		{
			name:    "gap within limit",
			entries: []*Entry{entry("a", 1250, "5+3", true, 0), entry("b", 1200, "5+3", true, 1)},
			want:    [][2]string{{"b", "a"}},
		},
		{
			name:    "gap exactly at limit",
			entries: []*Entry{entry("a", 1300, "5+3", true, 0), entry("b", 1200, "5+3", true, 1)},
			want:    [][2]string{{"b", "a"}},
		},
		{
			name:    "gap over limit",
			entries: []*Entry{entry("a", 1301, "5+3", true, 0), entry("b", 1200, "5+3", true, 1)},
		},
		{
			name:    "different time control",
			entries: []*Entry{entry("a", 1200, "5+3", true, 0), entry("b", 1200, "3+2", true, 1)},
		},
		{
			name:    "different rated flag",
			entries: []*Entry{entry("a", 1200, "5+3", true, 0), entry("b", 1200, "5+3", false, 1)},
		},
		{
			name: "unmatched entry still meets the next one",
			entries: []*Entry{
				entry("a", 1000, "5+3", true, 0),
				entry("b", 1150, "1+0", true, 1),
				entry("c", 1160, "1+0", true, 2),
				entry("d", 1500, "5+3", true, 3),
			},
			want: [][2]string{{"b", "c"}},
		},
		{
			name: "greedy takes adjacent pairs in order",
			entries: []*Entry{
				entry("a", 1000, "5+3", true, 0),
				entry("b", 1050, "5+3", true, 1),
				entry("c", 1090, "5+3", true, 2),
				entry("d", 1140, "5+3", true, 3),
			},
			want: [][2]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name: "equal ratings ordered by arrival",
			entries: []*Entry{
				entry("late", 1200, "5+3", true, 9),
				entry("early", 1200, "5+3", true, 1),
			},
			want: [][2]string{{"early", "late"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := users(Pair(tc.entries, 100))
			if len(got) != len(tc.want) {
				t.Fatalf("pairs = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("pairs = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestPairDoesNotReorderInput(t *testing.T) {
	in := []*Entry{entry("a", 1500, "5+3", true, 0), entry("b", 1000, "5+3", true, 1)}
	Pair(in, 100)
	if in[0].UserID() != "a" {
		t.Fatalf("input was sorted in place")
	}
}

func TestQueueAddRemove(t *testing.T) {
	q := NewQueue()
	if err := q.Add(entry("a", 1200, "5+3", true, 0)); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(entry("a", 1200, "3+2", true, 0)); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	_ = q.Add(entry("b", 1200, "5+3", true, 1))
	if _, ok := q.Remove("a"); !ok {
		t.Fatal("remove a")
	}
	if _, ok := q.Remove("a"); ok {
		t.Fatal("second remove should be a no-op")
	}
	if got := q.RemoveConn("c-b"); len(got) != 1 || q.Len() != 0 {
		t.Fatalf("RemoveConn = %v, len %d", got, q.Len())
	}
}
