package item

import "fmt"

// Stack is an amount of one item type. Amount is mutable so a payload can be
// clipped while a match is being assembled.
//
// Invariant: Amount >= 0.
type Stack struct {
	Type   Type `json:"type" yaml:"type"`
	Amount int  `json:"amount" yaml:"amount"`
}

// NewStack returns a Stack of amount units of t.
func NewStack(t Type, amount int) Stack {
	return Stack{Type: t, Amount: amount}
}

// HasType reports whether the stack's type matches t.
func (s Stack) HasType(t Type) bool {
	return s.Type.Matches(t)
}

// Clip returns a copy with Amount reduced to at most limit.
//
// Postcondition: result.Amount == min(s.Amount, max(limit, 0)).
func (s Stack) Clip(limit int) Stack {
	if limit < 0 {
		limit = 0
	}
	if s.Amount > limit {
		s.Amount = limit
	}
	return s
}

func (s Stack) String() string {
	return fmt.Sprintf("%sx%d", s.Type, s.Amount)
}
