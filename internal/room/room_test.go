package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/worker"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func actor(conn, user string, blitz int) domain.Actor {
	return domain.Actor{ConnID: conn, Identity: domain.Identity{
		UserID:   user,
		Username: user + "-name",
		Ratings:  map[domain.Category]int{domain.Blitz: blitz},
	}}
}

func setup(t *testing.T, opts ...registry.Option) (*Handler, *presenter.Recorder, *registry.Registry, *store.Memory) {
	t.Helper()
	f := clock.NewFake(time.Unix(1_700_000_000, 0))
	reg := registry.New(f, opts...)
	rec := presenter.NewRecorder()
	pres := presenter.New(rec, nil)
	repo := store.NewMemory()
	st := settlement.New(reg, pres, repo, settlement.WithRunner(worker.Inline{}))
	return New(reg, st, pres, f, 1200).WithCoin(func() bool { return true }), rec, reg, repo
}

func TestCreateRoomSeatsHost(t *testing.T) {
	h, rec, _, _ := setup(t)
	s, err := h.CreateRoom(actor("c1", "u1", 1500), arenadto.CreateRoomRequest{TimeControl: "5+3", Color: "b"})
	require.NoError(t, err)

	assert.Equal(t, game.StatusWaiting, s.Status())
	host := s.PlayerByUser("u1")
	require.NotNil(t, host)
	assert.Equal(t, domain.Black, host.Color)
	assert.Equal(t, 1500, host.Rating)

	msg, ok := rec.Last("c1", arenadto.EventRoomCreated)
	require.True(t, ok)
	assert.Equal(t, arenadto.RoomCreated{SessionID: s.ID, AssignedColor: "b"}, msg.Payload)
	assert.Equal(t, 1, rec.Members(s.ID))
}

func TestCreateRoomRandomColorAndValidation(t *testing.T) {
	h, _, _, _ := setup(t)
	s, err := h.CreateRoom(actor("c1", "u1", 0), arenadto.CreateRoomRequest{TimeControl: "3+2"})
	require.NoError(t, err)
	assert.Equal(t, domain.White, s.PlayerByUser("u1").Color)
	assert.Equal(t, 1200, s.PlayerByUser("u1").Rating, "missing rating falls back to the default")

	_, err = h.CreateRoom(actor("c2", "u2", 0), arenadto.CreateRoomRequest{TimeControl: "soon"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = h.CreateRoom(actor("c2", "u2", 0), arenadto.CreateRoomRequest{TimeControl: "3+2", Color: "green"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCreateRoomAtCapacity(t *testing.T) {
	h, _, _, _ := setup(t, registry.WithCapacity(1))
	_, err := h.CreateRoom(actor("c1", "u1", 0), arenadto.CreateRoomRequest{TimeControl: "5+0"})
	require.NoError(t, err)
	_, err = h.CreateRoom(actor("c2", "u2", 0), arenadto.CreateRoomRequest{TimeControl: "5+0"})
	assert.ErrorIs(t, err, registry.ErrCapacity)
}

func TestJoinSecondPlayerStartsGame(t *testing.T) {
	h, rec, _, repo := setup(t)
	s, err := h.CreateRoom(actor("c1", "u1", 1500), arenadto.CreateRoomRequest{TimeControl: "5+3", Rated: true, Color: "w"})
	require.NoError(t, err)

	role, got, err := h.JoinRoom(actor("c2", "u2", 1450), s.ID)
	require.NoError(t, err)
	assert.Equal(t, RolePlayer, role)
	assert.Same(t, s, got)
	assert.Equal(t, game.StatusPlaying, s.Status())
	assert.Equal(t, domain.Black, s.PlayerByUser("u2").Color)
	assert.Equal(t, 300.0, s.Clocks().White)

	for _, conn := range []string{"c1", "c2"} {
		msg, ok := rec.Last(conn, arenadto.EventGameStart)
		require.True(t, ok, conn)
		st := msg.Payload.(arenadto.GameState)
		assert.Len(t, st.Players, 2)
		assert.Equal(t, "playing", st.Status)
	}
	prov, ok := repo.GameByUUID(s.GameID)
	require.True(t, ok)
	assert.Equal(t, domain.ResultOngoing, prov.Result)
	assert.Equal(t, 1450, prov.BlackRatingBefore)
}

func TestJoinAsSpectatorAndReconnect(t *testing.T) {
	h, rec, _, _ := setup(t)
	s, _ := h.CreateRoom(actor("c1", "u1", 0), arenadto.CreateRoomRequest{TimeControl: "5+3", Color: "w"})
	_, _, err := h.JoinRoom(actor("c2", "u2", 0), s.ID)
	require.NoError(t, err)

	role, _, err := h.JoinRoom(actor("c3", "u3", 0), s.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleSpectator, role)
	assert.Nil(t, s.PlayerByUser("u3"))
	msg, _ := rec.Last("c3", arenadto.EventJoined)
	assert.Equal(t, "spectator", msg.Payload.(arenadto.Joined).Role)

	s.Disconnect("c1")
	role, _, err = h.JoinRoom(actor("c9", "u1", 0), s.ID)
	require.NoError(t, err)
	assert.Equal(t, RolePlayer, role)
	p := s.PlayerByUser("u1")
	assert.Equal(t, "c9", p.ConnID)
	assert.True(t, p.Connected)
	msg, _ = rec.Last("c9", arenadto.EventJoined)
	joined := msg.Payload.(arenadto.Joined)
	assert.Equal(t, "player", joined.Role)
	assert.Equal(t, s.FEN(), joined.Position)
}

func TestReconnectDisarmsGrace(t *testing.T) {
	h, rec, _, _ := setup(t)
	s, _ := h.CreateRoom(actor("c1", "u1", 0), arenadto.CreateRoomRequest{TimeControl: "5+3", Color: "w"})
	_, _, _ = h.JoinRoom(actor("c2", "u2", 0), s.ID)

	s.Disconnect("c1")
	s.ArmGrace(domain.White, h.sched.After(time.Minute, func() { t.Fatal("grace fired after reconnect") }))

	_, _, err := h.JoinRoom(actor("c1b", "u1", 0), s.ID)
	require.NoError(t, err)
	assert.False(t, s.GracePending(domain.White))
	assert.Equal(t, 1, rec.Count("c2", arenadto.EventOpponentReconnected))
	h.sched.(*clock.Fake).Advance(2 * time.Minute)
}

func TestJoinUnknownSession(t *testing.T) {
	h, _, _, _ := setup(t)
	_, _, err := h.JoinRoom(actor("c1", "u1", 0), "nope")
	assert.ErrorIs(t, err, registry.ErrSessionNotFound)
}

func TestSeatedPlayerCannotTakeAnotherSeat(t *testing.T) {
	h, _, reg, _ := setup(t)
	s, _ := h.CreateRoom(actor("c1", "u1", 0), arenadto.CreateRoomRequest{TimeControl: "5+3", Color: "w"})
	_, _, err := h.JoinRoom(actor("c2", "u2", 0), s.ID)
	require.NoError(t, err)

	_, err = h.CreateRoom(actor("c1", "u1", 0), arenadto.CreateRoomRequest{TimeControl: "5+3"})
	assert.ErrorIs(t, err, registry.ErrAlreadyPlaying)
	assert.Equal(t, 1, reg.Len())

	other, err := h.CreateRoom(actor("c3", "u3", 0), arenadto.CreateRoomRequest{TimeControl: "5+3"})
	require.NoError(t, err)
	_, _, err = h.JoinRoom(actor("c2", "u2", 0), other.ID)
	assert.ErrorIs(t, err, registry.ErrAlreadyPlaying)
	assert.Len(t, other.Players(), 1)

	// Watching and returning to the own game stay open.
	role, _, err := h.JoinRoom(actor("c2", "u2", 0), s.ID)
	require.NoError(t, err)
	assert.Equal(t, RolePlayer, role)
}
