package arenadto

import (
	"encoding/json"
	"fmt"
)

// Inbound event types.
const (
	TypeCreateRoom      = "createRoom"
	TypeJoinRoom        = "joinRoom"
	TypeFindMatch       = "findMatch"
	TypeCancelFindMatch = "cancelFindMatch"
	TypeAcceptMatch     = "acceptMatch"
	TypeDeclineMatch    = "declineMatch"
	TypeMakeMove        = "makeMove"
	TypeResign          = "resign"
	TypeOfferDraw       = "offerDraw"
	TypeAcceptDraw      = "acceptDraw"
	TypeDeclineDraw     = "declineDraw"
	TypeOfferRematch    = "offerRematch"
	TypeAcceptRematch   = "acceptRematch"
	TypeDeclineRematch  = "declineRematch"
)

// Envelope is the frame read from a client socket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v as is.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

type CreateRoomRequest struct {
	TimeControl string `json:"timeControl"`
	Rated       bool   `json:"rated"`
	// Color is "w", "b" or empty for random.
	Color string `json:"color,omitempty"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

type FindMatchRequest struct {
	TimeControl string `json:"timeControl"`
	Rated       bool   `json:"rated"`
}

type MatchRequest struct {
	MatchID string `json:"matchId"`
}

type MakeMoveRequest struct {
	SessionID string `json:"sessionId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}
