// Package message defines the offer/request envelopes exchanged between
// producers, consumers and controllers within a single tick.
package message

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

// Kind is the closed set of message kinds.
type Kind uint8

const (
	// Offer declares surplus available for pickup at the sender.
	Offer Kind = iota + 1
	// Request declares the sender needs more of an item.
	Request
)

func (k Kind) String() string {
	switch k {
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Priority orders messages; higher is served first.
type Priority int

const (
	Low    Priority = 0
	Medium Priority = 1
	High   Priority = 2
)

// Message is an ephemeral offer or request. Messages never outlive the tick
// they were sent in.
type Message struct {
	ID       uint64
	Sender   entity.ID
	Kind     Kind
	Payload  item.Stack
	Priority Priority
}

// New builds a message.
//
// Precondition: sender != entity.None; kind is Offer or Request; payload.Amount >= 0.
func New(id uint64, sender entity.ID, kind Kind, payload item.Stack, prio Priority) Message {
	return Message{ID: id, Sender: sender, Kind: kind, Payload: payload, Priority: prio}
}

// Matches reports whether m's payload type matches t.
func (m Message) Matches(t item.Type) bool {
	return m.Payload.HasType(t)
}

func (m Message) String() string {
	return fmt.Sprintf("%s{id=%d, prio=%d, payload=%s, sender=%s}", m.Kind, m.ID, m.Priority, m.Payload, m.Sender)
}

// SortByPriority orders msgs by descending priority. Messages of equal
// priority keep their relative order.
func SortByPriority(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Priority > msgs[j].Priority })
}

// Batch groups msgs by priority.
//
// Postcondition: batches are ordered by descending priority; each batch keeps
// the input order of its messages.
func Batch(msgs []Message) [][]Message {
	byPrio := make(map[Priority][]Message)
	for _, m := range msgs {
		byPrio[m.Priority] = append(byPrio[m.Priority], m)
	}
	prios := make([]Priority, 0, len(byPrio))
	for p := range byPrio {
		prios = append(prios, p)
	}
	sort.Slice(prios, func(i, j int) bool { return prios[i] > prios[j] })
	out := make([][]Message, 0, len(prios))
	for _, p := range prios {
		out = append(out, byPrio[p])
	}
	return out
}
