package layout

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestForGameType(t *testing.T) {
	tests := []struct {
		name    string
		columns int
	}{
		{"dance-single", 4},
		{"dance-double", 8},
		{"dance-solo", 6},
		{"pump-single", 5},
		{"pump-double", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ForGameType(tt.name)
			if err != nil {
				t.Fatalf("ForGameType(%q): %v", tt.name, err)
			}
			if l.ColumnCount() != tt.columns {
				t.Errorf("expected %d columns, got %d", tt.columns, l.ColumnCount())
			}
			left, right := l.HomeColumns()
			if left < 0 || left >= l.ColumnCount() || right < 0 || right >= l.ColumnCount() || left == right {
				t.Errorf("bad home columns %d/%d", left, right)
			}
		})
	}
}

func TestForGameType_Unknown(t *testing.T) {
	_, err := ForGameType("kb7-single")
	if !errors.Is(err, ErrUnknownGameType) {
		t.Fatalf("expected ErrUnknownGameType, got %v", err)
	}
}

func TestGameTypesSorted(t *testing.T) {
	names := GameTypes()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("game types not sorted: %v", names)
		}
	}
}

func TestBracketCheck_DanceSingle(t *testing.T) {
	l, _ := ForGameType("dance-single")
	tests := []struct {
		a, b int
		want bool
	}{
		{0, 1, true},  // left+down
		{0, 2, true},  // left+up
		{1, 3, true},  // down+right
		{0, 3, false}, // left+right
		{1, 2, false}, // down+up
		{2, 2, false},
	}
	for _, tt := range tests {
		if got := l.BracketCheck(tt.a, tt.b); got != tt.want {
			t.Errorf("BracketCheck(%d,%d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	l, _ := ForGameType("dance-single")
	if d := l.Distance(0, 3); math.Abs(d-2) > 1e-9 {
		t.Errorf("left-right distance = %v, want 2", d)
	}
	if d := l.Distance(0, 1); math.Abs(d-math.Sqrt2) > 1e-9 {
		t.Errorf("left-down distance = %v, want sqrt2", d)
	}
}

func TestFacing(t *testing.T) {
	left := r2.Vec{X: 0, Y: 1}
	right := r2.Vec{X: 2, Y: 1}

	if f, ok := FacingVector(left, right); !ok || math.Abs(f.Y-1) > 1e-9 {
		t.Errorf("forward stance facing = %v (%v), want +Y", f, ok)
	}
	if f, ok := FacingVector(right, left); !ok || math.Abs(f.Y+1) > 1e-9 {
		t.Errorf("reversed stance facing = %v (%v), want -Y", f, ok)
	}
	if a, ok := FacingAngle(left, right); !ok || math.Abs(a) > 1e-9 {
		t.Errorf("forward angle = %v, want 0", a)
	}
	if a, _ := FacingAngle(right, left); math.Abs(a-180) > 1e-9 {
		t.Errorf("backward angle = %v, want 180", a)
	}
	// Left foot on down, right on up: facing stage left.
	if a, _ := FacingAngle(r2.Vec{X: 1, Y: 0}, r2.Vec{X: 1, Y: 2}); math.Abs(a+90) > 1e-9 {
		t.Errorf("down/up angle = %v, want -90", a)
	}
	if _, ok := FacingVector(left, left); ok {
		t.Error("coincident feet should have no facing")
	}
}

func TestMidpoint(t *testing.T) {
	m := Midpoint(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 2, Y: 4})
	if m.X != 1 || m.Y != 2 {
		t.Errorf("Midpoint = %+v", m)
	}
}
