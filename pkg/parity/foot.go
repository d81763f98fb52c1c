package parity

import "fmt"

// Foot identifies a foot-part, or none.
type Foot int8

const (
	FootNone Foot = iota
	LeftHeel
	LeftToe
	RightHeel
	RightToe
)

// footSlots is the size of arrays indexed by Foot.
const footSlots = 5

// footParts lists the four real foot-parts in search order.
var footParts = [...]Foot{LeftHeel, LeftToe, RightHeel, RightToe}

var footNames = [...]string{"none", "left_heel", "left_toe", "right_heel", "right_toe"}

func (f Foot) String() string {
	if f < 0 || int(f) >= len(footNames) {
		return fmt.Sprintf("Foot(%d)", int8(f))
	}
	return footNames[f]
}

// MarshalText encodes the foot as its name.
func (f Foot) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a foot name.
func (f *Foot) UnmarshalText(b []byte) error {
	for i, name := range footNames {
		if name == string(b) {
			*f = Foot(i)
			return nil
		}
	}
	return fmt.Errorf("unknown foot %q", b)
}

// IsLeft reports whether f belongs to the left foot.
func (f Foot) IsLeft() bool { return f == LeftHeel || f == LeftToe }

// IsRight reports whether f belongs to the right foot.
func (f Foot) IsRight() bool { return f == RightHeel || f == RightToe }

// IsHeel reports whether f is a heel.
func (f Foot) IsHeel() bool { return f == LeftHeel || f == RightHeel }

// IsToe reports whether f is a toe.
func (f Foot) IsToe() bool { return f == LeftToe || f == RightToe }

// Side returns the side f belongs to.
func (f Foot) Side() Side {
	switch {
	case f.IsLeft():
		return Left
	case f.IsRight():
		return Right
	}
	return NoSide
}

// Partner returns the other part of the same foot (heel <-> toe).
func (f Foot) Partner() Foot {
	switch f {
	case LeftHeel:
		return LeftToe
	case LeftToe:
		return LeftHeel
	case RightHeel:
		return RightToe
	case RightToe:
		return RightHeel
	}
	return FootNone
}

// Side is a whole foot.
type Side int8

const (
	NoSide Side = iota - 1
	Left
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "none"
}

// MarshalText encodes the side name.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a side name.
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*s = Left
	case "right":
		*s = Right
	case "none", "":
		*s = NoSide
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// Other returns the opposite side.
func (s Side) Other() Side {
	switch s {
	case Left:
		return Right
	case Right:
		return Left
	}
	return NoSide
}

// Heel returns the heel of s.
func (s Side) Heel() Foot {
	if s == Left {
		return LeftHeel
	}
	return RightHeel
}

// Toe returns the toe of s.
func (s Side) Toe() Foot {
	if s == Left {
		return LeftToe
	}
	return RightToe
}

var sides = [...]Side{Left, Right}

// Override pins the foot used for a note.
type Override int8

const (
	OverrideNone Override = iota
	OverrideLeft
	OverrideRight
	OverrideLeftHeel
	OverrideLeftToe
	OverrideRightHeel
	OverrideRightToe
)

var overrideNames = [...]string{"", "left", "right", "left_heel", "left_toe", "right_heel", "right_toe"}

func (o Override) String() string {
	if o < 0 || int(o) >= len(overrideNames) {
		return fmt.Sprintf("Override(%d)", int8(o))
	}
	if o == OverrideNone {
		return "none"
	}
	return overrideNames[o]
}

// MarshalText encodes the override as its name; none encodes as "".
func (o Override) MarshalText() ([]byte, error) {
	if o < 0 || int(o) >= len(overrideNames) {
		return nil, fmt.Errorf("invalid override %d", int8(o))
	}
	return []byte(overrideNames[o]), nil
}

// UnmarshalText decodes an override name. "" and "none" mean no override.
func (o *Override) UnmarshalText(b []byte) error {
	s := string(b)
	if s == "none" {
		*o = OverrideNone
		return nil
	}
	for i, name := range overrideNames {
		if name == s {
			*o = Override(i)
			return nil
		}
	}
	return fmt.Errorf("unknown override %q", s)
}

// Allows reports whether f satisfies the override.
func (o Override) Allows(f Foot) bool {
	switch o {
	case OverrideNone:
		return true
	case OverrideLeft:
		return f.IsLeft()
	case OverrideRight:
		return f.IsRight()
	case OverrideLeftHeel:
		return f == LeftHeel
	case OverrideLeftToe:
		return f == LeftToe
	case OverrideRightHeel:
		return f == RightHeel
	case OverrideRightToe:
		return f == RightToe
	}
	return false
}

// PinsToe reports whether the override names a toe.
func (o Override) PinsToe() bool {
	return o == OverrideLeftToe || o == OverrideRightToe
}
