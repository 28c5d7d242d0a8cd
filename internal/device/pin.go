package device

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MaxPin is the largest pin the speaker accepts.
const MaxPin = 9999

// Pin is an optional four-digit unlock code. The zero value means no pin.
// Pin is comparable and safe to use inside map keys.
type Pin struct {
	code uint16
	set  bool
}

// NoPin is the absent pin.
var NoPin = Pin{}

// NewPin validates code and returns a set pin.
func NewPin(code int) (Pin, error) {
	if code < 0 || code > MaxPin {
		return NoPin, fmt.Errorf("pin %d out of range 0..%d", code, MaxPin)
	}
	return Pin{code: uint16(code), set: true}, nil
}

// MustPin is NewPin that panics on an invalid code.
func MustPin(code int) Pin {
	p, err := NewPin(code)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePin parses a decimal pin; an empty string yields NoPin.
func ParsePin(s string) (Pin, error) {
	if s == "" || s == "none" {
		return NoPin, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return NoPin, fmt.Errorf("invalid pin %q: %w", s, err)
	}
	return NewPin(n)
}

func (p Pin) IsSet() bool { return p.set }

func (p Pin) Code() int { return int(p.code) }

// IsZero lets yaml omitempty drop absent pins.
func (p Pin) IsZero() bool { return !p.set }

// String renders the pin zero-padded to four digits, or "none".
func (p Pin) String() string {
	if !p.set {
		return "none"
	}
	return fmt.Sprintf("%04d", p.code)
}

// MarshalYAML stores the pin as an integer, or null when absent.
func (p Pin) MarshalYAML() (interface{}, error) {
	if !p.set {
		return nil, nil
	}
	return int(p.code), nil
}

// UnmarshalYAML accepts an integer, a digit string or null.
func (p *Pin) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*p = NoPin
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParsePin(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
