package events

import "testing"

func TestSubjectFor(t *testing.T) {
	cases := []struct{ prefix, subject, want string }{
		{"arena", SubjectGameStarted, "arena.game.started"},
		{" arena. ", SubjectRatingUpdated, "arena.rating.updated"},
		{"", SubjectGameFinished, "game.finished"},
	}
	for _, c := range cases {
		if got := subjectFor(c.prefix, c.subject); got != c.want {
			t.Fatalf("subjectFor(%q, %q) = %q", c.prefix, c.subject, got)
		}
	}
}

func TestRecorderKeepsOrder(t *testing.T) {
	var r Recorder
	r.Publish(SubjectGameStarted, GameStarted{SessionID: "s"})
	r.Publish(SubjectGameFinished, GameFinished{SessionID: "s"})
	got := r.Subjects()
	if len(got) != 2 || got[0] != SubjectGameStarted || got[1] != SubjectGameFinished {
		t.Fatalf("subjects = %v", got)
	}
	Nop().Publish("x", nil)
}
