package value

import "testing"

func TestEqualAcrossVariants(t *testing.T) {
	if Equal(Nil, Bool(false)) {
		t.Error("nil should not equal false")
	}
	if !Equal(Nil, Nil) {
		t.Error("nil should equal nil")
	}
	if !Equal(Number(1), Number(1)) {
		t.Error("equal numbers should compare equal")
	}
	if Equal(Number(1), Number(2)) {
		t.Error("different numbers should not compare equal")
	}
}

func TestEqualNaN(t *testing.T) {
	nan := Number(nan())
	if Equal(nan, nan) {
		t.Error("NaN must not equal itself")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil, true},
		{Bool(false), true},
		{Bool(true), false},
		{Number(0), false},
		{Number(1), false},
	}
	for _, c := range cases {
		if got := c.v.Falsey(); got != c.want {
			t.Errorf("Falsey(%v) = %v, want %v", Print(c.v), got, c.want)
		}
	}
}

func TestStringReferenceIdentity(t *testing.T) {
	a := NewString("hi")
	b := NewString("hi")
	va := FromObj(&a.Obj)
	vb := FromObj(&b.Obj)
	if Equal(va, vb) {
		t.Error("two distinct, non-interned StringObjs must not compare equal")
	}
	if !Equal(va, va) {
		t.Error("a value must equal itself")
	}
}

func TestPrintNumbers(t *testing.T) {
	cases := map[float64]string{
		0:    "0",
		1:    "1",
		1.5:  "1.5",
		-2:   "-2",
		100:  "100",
	}
	for n, want := range cases {
		if got := Print(Number(n)); got != want {
			t.Errorf("Print(%v) = %q, want %q", n, got, want)
		}
	}
}

func TestPrintObjects(t *testing.T) {
	fn := NewFunction()
	if got := Print(FromObj(&fn.Obj)); got != "<script>" {
		t.Errorf("unnamed function should print as <script>, got %q", got)
	}
	fn.Name = NewString("greet")
	if got := Print(FromObj(&fn.Obj)); got != "<fn greet>" {
		t.Errorf("named function should print as <fn greet>, got %q", got)
	}

	class := NewClass(NewString("Point"))
	if got := Print(FromObj(&class.Obj)); got != "Point" {
		t.Errorf("class should print its name, got %q", got)
	}

	inst := NewInstance(class)
	if got := Print(FromObj(&inst.Obj)); got != "Point instance" {
		t.Errorf("instance should print as 'Point instance', got %q", got)
	}
}

func TestFNV1aKnownValue(t *testing.T) {
	// FNV-1a 32-bit of the empty string is the offset basis itself.
	if got := FNV1a(""); got != 2166136261 {
		t.Errorf("FNV1a(\"\") = %d, want 2166136261", got)
	}
}
