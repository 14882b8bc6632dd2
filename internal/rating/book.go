package rating

import "github.com/park285/cheese-arena/internal/domain"

// Book holds ratings settled since the process started. Identities carry
// the ratings read at connect time, which go stale once a game on the same
// connection is rated; Book is consulted first. It belongs to the event
// loop and is not safe for concurrent use.
type Book struct {
	settled map[string]map[domain.Category]int
}

func NewBook() *Book {
	return &Book{settled: make(map[string]map[domain.Category]int)}
}

// Record stores the post-game rating of every change.
func (b *Book) Record(changes []domain.RatingChange) {
	for _, c := range changes {
		byCat, ok := b.settled[c.UserID]
		if !ok {
			byCat = make(map[domain.Category]int)
			b.settled[c.UserID] = byCat
		}
		byCat[c.Category] = c.After
	}
}

// For returns the current rating of id in cat.
func (b *Book) For(id domain.Identity, cat domain.Category, def int) int {
	if r, ok := b.settled[id.UserID][cat]; ok {
		return r
	}
	return id.RatingFor(cat, def)
}
