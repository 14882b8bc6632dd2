package presenter

import (
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Outbound is the delivery surface of the socket hub. Rooms are named by
// session id; a connection may sit in many rooms.
type Outbound interface {
	Send(connID string, msg arenadto.Message)
	Publish(room string, msg arenadto.Message)
	Subscribe(room, connID string)
	Unsubscribe(room, connID string)
}

// Catalog renders client-facing text.
type Catalog interface {
	Text(key string, data any, def string) string
}

// Presenter delivers typed events without coupling handlers to the hub.
type Presenter struct {
	out Outbound
	cat Catalog
}

func New(out Outbound, cat Catalog) *Presenter {
	return &Presenter{out: out, cat: cat}
}

func (p *Presenter) Send(connID, typ string, payload any) {
	if p == nil || p.out == nil || connID == "" {
		return
	}
	p.out.Send(connID, arenadto.Message{Type: typ, Payload: payload})
}

func (p *Presenter) Broadcast(sessionID, typ string, payload any) {
	if p == nil || p.out == nil {
		return
	}
	p.out.Publish(sessionID, arenadto.Message{Type: typ, Payload: payload})
}

func (p *Presenter) Join(sessionID, connID string) {
	if p != nil && p.out != nil && connID != "" {
		p.out.Subscribe(sessionID, connID)
	}
}

func (p *Presenter) Leave(sessionID, connID string) {
	if p != nil && p.out != nil && connID != "" {
		p.out.Unsubscribe(sessionID, connID)
	}
}

// Reject sends an error event to the requester only.
func (p *Presenter) Reject(connID, op, code string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["Op"] = op
	msg := code
	if p != nil && p.cat != nil {
		msg = p.cat.Text("error."+code, data, code)
	}
	p.Send(connID, arenadto.EventError, arenadto.DomainError{
		Code:      code,
		Message:   msg,
		Retryable: code == arenadto.CodeServerBusy,
		Op:        op,
	})
}

// Text renders a catalog message, or def without a catalog.
func (p *Presenter) Text(key string, data any, def string) string {
	if p == nil || p.cat == nil {
		return def
	}
	return p.cat.Text(key, data, def)
}
