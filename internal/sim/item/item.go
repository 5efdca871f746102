// Package item defines the closed set of item kinds moved by the fleet.
package item

import (
	"fmt"
	"strings"
)

// Type is an item kind. The zero value Unknown is never stored.
type Type uint8

const (
	Unknown Type = iota
	Concrete
	Stone
	Iron
	// Any is the wildcard used by capability queries; it is never stored.
	Any
)

var typeNames = map[Type]string{
	Unknown:  "UNKNOWN",
	Concrete: "CONCRETE",
	Stone:    "STONE",
	Iron:     "IRON",
	Any:      "ANY",
}

// ConcreteTypes returns every storable type in declaration order.
//
// Postcondition: Returns a new slice; neither Unknown nor Any is included.
func ConcreteTypes() []Type {
	return []Type{Concrete, Stone, Iron}
}

// Matches reports whether t can stand in for other. Any matches every type;
// a concrete type matches Any or itself. Unknown matches nothing.
func (t Type) Matches(other Type) bool {
	if t == Unknown || other == Unknown {
		return false
	}
	if t == Any || other == Any {
		return true
	}
	return t == other
}

// IsConcrete reports whether t may be stored in a ledger.
func (t Type) IsConcrete() bool {
	return t != Unknown && t != Any && int(t) < len(typeNames)
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType resolves a case-insensitive type name.
//
// Postcondition: Returns the matching Type or an error naming s.
func ParseType(s string) (Type, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range typeNames {
		if t != Unknown && n == want {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown item type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
