package game

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
)

// Session is one authoritative match. It is not safe for concurrent use;
// all access happens on the owning event loop.
type Session struct {
	ID     string
	Config Config

	// GameID identifies the current round; a rematch gets a new one.
	GameID string
	Round  int
	// Version increases on every mutation and orders snapshot writes.
	Version uint64

	status       Status
	board        *nchess.Game
	players      []*Player
	clocks       clock.Clocks
	lastMove     time.Time
	drawOffer    domain.Color
	rematchOffer domain.Color
	outcome      *Outcome
	movesUCI     []string
	movesSAN     []string

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time

	cleanup  clock.Timer
	grace    map[domain.Color]clock.Timer
	onChange func(id string)
}

func New(id string, cfg Config, now time.Time) *Session {
	return &Session{
		ID:        id,
		Config:    cfg,
		GameID:    uuid.NewString(),
		Round:     1,
		status:    StatusWaiting,
		board:     nchess.NewGame(),
		clocks:    clock.Start(cfg.TimeControl),
		CreatedAt: now,
		grace:     make(map[domain.Color]clock.Timer),
	}
}

func (s *Session) Status() Status             { return s.status }
func (s *Session) IsFinished() bool           { return s.status == StatusFinished }
func (s *Session) Clocks() clock.Clocks       { return s.clocks }
func (s *Session) LastMove() time.Time        { return s.lastMove }
func (s *Session) DrawOffer() domain.Color    { return s.drawOffer }
func (s *Session) RematchOffer() domain.Color { return s.rematchOffer }
func (s *Session) FEN() string                { return s.board.FEN() }
func (s *Session) MovesSAN() []string         { return append([]string(nil), s.movesSAN...) }
func (s *Session) MovesUCI() []string         { return append([]string(nil), s.movesUCI...) }
func (s *Session) Outcome() *Outcome          { return s.outcome }
func (s *Session) Category() domain.Category  { return s.Config.Category() }
func (s *Session) TimeControl() string        { return s.Config.TimeControl.String() }
func (s *Session) Ply() int                   { return len(s.movesUCI) }
func (s *Session) Players() []*Player         { return s.players }

func (s *Session) touch() {
	s.Version++
	if s.onChange != nil {
		s.onChange(s.ID)
	}
}

// OnChange installs fn to run after every mutation. The registry uses it
// to find sessions whose snapshot is out of date.
func (s *Session) OnChange(fn func(id string)) { s.onChange = fn }

func (s *Session) DisplayClocks(now time.Time) clock.Clocks {
	if s.status != StatusPlaying {
		return s.clocks
	}
	return clock.Display(s.clocks, s.Turn(), s.lastMove, now)
}

// Turn is the color to move according to the rules engine.
func (s *Session) Turn() domain.Color {
	if s.board.Position().Turn() == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func (s *Session) PlayerByUser(userID string) *Player {
	for _, p := range s.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *Session) PlayerByColor(c domain.Color) *Player {
	for _, p := range s.players {
		if p.Color == c {
			return p
		}
	}
	return nil
}

func (s *Session) PlayerByConn(connID string) *Player {
	if connID == "" {
		return nil
	}
	for _, p := range s.players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// Seat binds a player. The color must be free; it is never reassigned
// except by Reset.
func (s *Session) Seat(p Player) (*Player, error) {
	if len(s.players) >= 2 {
		return nil, ErrSessionFull
	}
	if !p.Color.Valid() {
		return nil, fmt.Errorf("seat %s: %w", p.UserID, ErrBadState)
	}
	if s.PlayerByColor(p.Color) != nil {
		return nil, ErrSeatTaken
	}
	if s.PlayerByUser(p.UserID) != nil {
		return nil, fmt.Errorf("seat %s: already bound: %w", p.UserID, ErrBadState)
	}
	bound := p
	bound.Connected = p.ConnID != ""
	s.players = append(s.players, &bound)
	s.touch()
	return &bound, nil
}

// FreeColor is the color the next player would take.
func (s *Session) FreeColor() domain.Color {
	switch {
	case s.PlayerByColor(domain.White) == nil:
		return domain.White
	case s.PlayerByColor(domain.Black) == nil:
		return domain.Black
	default:
		return domain.NoColor
	}
}

// Start moves waiting → playing once both seats are filled.
func (s *Session) Start(now time.Time) error {
	if s.status != StatusWaiting {
		return ErrBadState
	}
	if len(s.players) != 2 {
		return fmt.Errorf("start with %d players: %w", len(s.players), ErrBadState)
	}
	s.status = StatusPlaying
	s.lastMove = now
	s.StartedAt = now
	s.touch()
	return nil
}

// MakeMove runs the clock check, then the legality check. A flagged mover
// gets a MoveResult with Applied=false and a timeout Outcome; the caller
// owns ending the game. Rejections leave the session untouched.
func (s *Session) MakeMove(userID, from, to, promotion string, now time.Time) (MoveResult, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return MoveResult{}, ErrNotAPlayer
	}
	if s.status != StatusPlaying {
		return MoveResult{}, ErrNotPlaying
	}
	if p.Color != s.Turn() {
		return MoveResult{}, ErrOutOfTurn
	}

	charged, flagged := clock.Reconcile(s.clocks, p.Color, s.lastMove, now)
	if flagged {
		s.clocks = charged
		s.touch()
		o := winOutcome(p.Color.Opp(), domain.ReasonTimeout)
		return MoveResult{Mover: *p, Clocks: s.clocks, Outcome: &o}, nil
	}

	uci, san, err := s.push(from, to, promotion)
	if err != nil {
		return MoveResult{}, err
	}

	s.clocks = clock.Increment(charged, p.Color, s.Config.TimeControl.IncrementSeconds)
	s.lastMove = now
	s.movesUCI = append(s.movesUCI, uci)
	s.movesSAN = append(s.movesSAN, san)
	// Any move withdraws a stale draw offer.
	s.drawOffer = domain.NoColor
	s.touch()

	res := MoveResult{Applied: true, UCI: uci, SAN: san, FEN: s.board.FEN(), Mover: *p, Clocks: s.clocks}
	if o, over := s.boardOutcome(); over {
		res.Outcome = &o
	}
	return res, nil
}

// push validates and applies a move on the rules engine.
func (s *Session) push(from, to, promotion string) (uci, san string, err error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if len(from) != 2 || len(to) != 2 || len(promotion) > 1 {
		return "", "", ErrIllegalMove
	}
	candidates := []string{from + to + promotion}
	if promotion == "" {
		candidates = append(candidates, from+to+"q")
	}
	pos := s.board.Position()
	for _, cand := range candidates {
		if perr := s.board.PushNotationMove(cand, nchess.UCINotation{}, nil); perr != nil {
			continue
		}
		moves := s.board.Moves()
		last := moves[len(moves)-1]
		return cand, nchess.AlgebraicNotation{}.Encode(pos, last), nil
	}
	return "", "", ErrIllegalMove
}

func (s *Session) boardOutcome() (Outcome, bool) {
	switch s.board.Outcome() {
	case nchess.WhiteWon:
		return winOutcome(domain.White, domain.ReasonCheckmate), true
	case nchess.BlackWon:
		return winOutcome(domain.Black, domain.ReasonCheckmate), true
	case nchess.Draw:
		if s.board.Method() == nchess.Stalemate {
			return drawOutcome(domain.ReasonStalemate), true
		}
		return drawOutcome(domain.ReasonDraw), true
	default:
		return Outcome{}, false
	}
}

// CheckFlag reconciles the side to move and reports a timeout once its
// time is gone. A clock with time left is not modified.
func (s *Session) CheckFlag(now time.Time) (Outcome, bool) {
	if s.status != StatusPlaying {
		return Outcome{}, false
	}
	turn := s.Turn()
	charged, flagged := clock.Reconcile(s.clocks, turn, s.lastMove, now)
	if !flagged {
		return Outcome{}, false
	}
	s.clocks = charged
	s.touch()
	return winOutcome(turn.Opp(), domain.ReasonTimeout), true
}

// Finish is the single terminal transition. It returns false when the
// session was already finished or never started, so the first reason wins.
// That includes a flag that fell before now but was not yet observed: the
// recorded outcome is then the timeout, not o. Read it back with Outcome.
func (s *Session) Finish(o Outcome, now time.Time) bool {
	if s.status != StatusPlaying {
		return false
	}
	if s.lastMove.Before(now) && o.Reason != domain.ReasonTimeout {
		// Freeze the mover's clock at the moment the game ended.
		turn := s.Turn()
		charged, flagged := clock.Reconcile(s.clocks, turn, s.lastMove, now)
		s.clocks = charged
		if flagged {
			o = winOutcome(turn.Opp(), domain.ReasonTimeout)
		}
	}
	out := o
	s.outcome = &out
	s.status = StatusFinished
	s.drawOffer = domain.NoColor
	s.rematchOffer = domain.NoColor
	s.EndedAt = now
	s.lastMove = now
	s.touch()
	return true
}

// Resign ends nothing by itself; it returns the outcome for the caller to
// settle.
func (s *Session) Resign(userID string) (Outcome, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return Outcome{}, ErrNotAPlayer
	}
	if s.status != StatusPlaying {
		return Outcome{}, ErrNotPlaying
	}
	return winOutcome(p.Color.Opp(), domain.ReasonResignation), nil
}

// Abandon is the outcome when c's player did not return within the grace
// period. If the other side is gone as well nobody is credited.
func (s *Session) Abandon(c domain.Color) (Outcome, error) {
	if s.status != StatusPlaying {
		return Outcome{}, ErrNotPlaying
	}
	if opp := s.PlayerByColor(c.Opp()); opp == nil || !opp.Connected {
		return drawOutcome(domain.ReasonAbandoned), nil
	}
	return winOutcome(c.Opp(), domain.ReasonAbandoned), nil
}

func (s *Session) OfferDraw(userID string) (*Player, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if s.drawOffer != domain.NoColor {
		return nil, ErrOfferPending
	}
	s.drawOffer = p.Color
	s.touch()
	return p, nil
}

// AcceptDraw returns the agreement outcome; the offer is consumed.
func (s *Session) AcceptDraw(userID string) (Outcome, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return Outcome{}, ErrNotAPlayer
	}
	if s.status != StatusPlaying {
		return Outcome{}, ErrNotPlaying
	}
	if s.drawOffer == domain.NoColor {
		return Outcome{}, ErrNoOffer
	}
	if s.drawOffer == p.Color {
		return Outcome{}, ErrOwnOffer
	}
	s.drawOffer = domain.NoColor
	s.touch()
	return drawOutcome(domain.ReasonAgreement), nil
}

// DeclineDraw clears the offer and returns the offerer.
func (s *Session) DeclineDraw(userID string) (*Player, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if s.drawOffer == domain.NoColor {
		return nil, ErrNoOffer
	}
	if s.drawOffer == p.Color {
		return nil, ErrOwnOffer
	}
	offerer := s.PlayerByColor(s.drawOffer)
	s.drawOffer = domain.NoColor
	s.touch()
	return offerer, nil
}

func (s *Session) OfferRematch(userID string) (*Player, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if s.status != StatusFinished {
		return nil, ErrNotFinished
	}
	if s.rematchOffer != domain.NoColor {
		return nil, ErrOfferPending
	}
	s.rematchOffer = p.Color
	s.touch()
	return p, nil
}

func (s *Session) DeclineRematch(userID string) (*Player, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if s.status != StatusFinished {
		return nil, ErrNotFinished
	}
	if s.rematchOffer == domain.NoColor {
		return nil, ErrNoOffer
	}
	if s.rematchOffer == p.Color {
		return nil, ErrOwnOffer
	}
	offerer := s.PlayerByColor(s.rematchOffer)
	s.rematchOffer = domain.NoColor
	s.touch()
	return offerer, nil
}

// CheckRematchAccept validates an accept without mutating anything.
func (s *Session) CheckRematchAccept(userID string) error {
	p := s.PlayerByUser(userID)
	if p == nil {
		return ErrNotAPlayer
	}
	if s.status != StatusFinished {
		return ErrNotFinished
	}
	if s.rematchOffer == domain.NoColor {
		return ErrNoOffer
	}
	if s.rematchOffer == p.Color {
		return ErrOwnOffer
	}
	return nil
}

// Reset starts the next round in place: colors swapped, fresh board,
// clocks at base, offers cleared, playing from now. The caller disarms
// the cleanup timer first.
func (s *Session) Reset(now time.Time) error {
	if s.status != StatusFinished || len(s.players) != 2 {
		return ErrNotFinished
	}
	for _, p := range s.players {
		p.Color = p.Color.Opp()
	}
	s.board = nchess.NewGame()
	s.clocks = clock.Start(s.Config.TimeControl)
	s.drawOffer = domain.NoColor
	s.rematchOffer = domain.NoColor
	s.outcome = nil
	s.movesUCI = nil
	s.movesSAN = nil
	s.status = StatusPlaying
	s.lastMove = now
	s.StartedAt = now
	s.EndedAt = time.Time{}
	s.GameID = uuid.NewString()
	s.Round++
	s.touch()
	return nil
}

// Connect rebinds a player's volatile connection.
func (s *Session) Connect(userID, connID string) (*Player, error) {
	p := s.PlayerByUser(userID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	p.ConnID = connID
	p.Connected = connID != ""
	s.touch()
	return p, nil
}

// Disconnect marks the player offline and drops offers they are party to.
func (s *Session) Disconnect(connID string) *Player {
	p := s.PlayerByConn(connID)
	if p == nil {
		return nil
	}
	p.Connected = false
	if s.drawOffer != domain.NoColor {
		s.drawOffer = domain.NoColor
	}
	if s.rematchOffer == p.Color {
		s.rematchOffer = domain.NoColor
	}
	s.touch()
	return p
}

func (s *Session) ArmCleanup(t clock.Timer) {
	s.DisarmCleanup()
	s.cleanup = t
}

// DisarmCleanup stops a pending cleanup and reports whether one was armed.
func (s *Session) DisarmCleanup() bool {
	if s.cleanup == nil {
		return false
	}
	t := s.cleanup
	s.cleanup = nil
	return t.Stop()
}

func (s *Session) ArmGrace(c domain.Color, t clock.Timer) {
	s.DisarmGrace(c)
	s.grace[c] = t
}

func (s *Session) DisarmGrace(c domain.Color) bool {
	t, ok := s.grace[c]
	if !ok {
		return false
	}
	delete(s.grace, c)
	return t.Stop()
}

func (s *Session) DisarmAllGrace() {
	for c := range s.grace {
		s.DisarmGrace(c)
	}
}

func (s *Session) GracePending(c domain.Color) bool {
	_, ok := s.grace[c]
	return ok
}
