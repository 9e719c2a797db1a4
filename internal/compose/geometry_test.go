package compose

import "testing"

func TestRectHalfOpenOverlap(t *testing.T) {
	a := RectXYWH(0, 0, 100, 100)

	cases := []struct {
		name string
		b    Rect
		want bool
	}{
		{"contained", RectXYWH(10, 10, 20, 20), true},
		{"partial", RectXYWH(90, 90, 50, 50), true},
		{"touching right edge", RectXYWH(100, 0, 50, 50), false},
		{"touching bottom edge", RectXYWH(0, 100, 50, 50), false},
		{"disjoint", RectXYWH(200, 200, 10, 10), false},
		{"identical", RectXYWH(0, 0, 100, 100), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("Overlaps(%+v) = %v, want %v", tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(a); got != tc.want {
				t.Fatalf("overlap must be symmetric for %+v", tc.b)
			}
		})
	}
}

func TestRectIntersect(t *testing.T) {
	a := RectXYWH(0, 0, 100, 100)
	b := RectXYWH(50, 60, 100, 100)

	got := a.Intersect(b)
	want := Rect{Left: 50, Top: 60, Right: 100, Bottom: 100}
	if got != want {
		t.Fatalf("Intersect = %+v, want %+v", got, want)
	}

	if got := a.Intersect(RectXYWH(100, 0, 10, 10)); got != (Rect{}) {
		t.Fatalf("touching rects must intersect to the zero rect, got %+v", got)
	}
}

func TestRectUnion(t *testing.T) {
	a := RectXYWH(0, 0, 10, 10)
	b := RectXYWH(50, -20, 10, 10)

	got := a.Union(b)
	want := Rect{Left: 0, Top: -20, Right: 60, Bottom: 10}
	if got != want {
		t.Fatalf("Union = %+v, want %+v", got, want)
	}

	if got := (Rect{}).Union(a); got != a {
		t.Fatalf("union with empty must be identity, got %+v", got)
	}
	if got := a.Union(Rect{}); got != a {
		t.Fatalf("union with empty must be identity, got %+v", got)
	}
}

func TestMatrixApply(t *testing.T) {
	x, y := Translate(10, 20).Apply(1, 2)
	if x != 11 || y != 22 {
		t.Fatalf("translate: got (%v,%v)", x, y)
	}

	x, y = Scale(2, 3).Apply(4, 5)
	if x != 8 || y != 15 {
		t.Fatalf("scale: got (%v,%v)", x, y)
	}

	x, y = Identity().Apply(7, 9)
	if x != 7 || y != 9 {
		t.Fatalf("identity: got (%v,%v)", x, y)
	}
}

func TestMatrixMultiplyOrder(t *testing.T) {
	// Scale-then-translate differs from translate-then-scale.
	st := Translate(10, 0).Multiply(Scale(2, 2))
	x, _ := st.Apply(3, 0)
	if x != 16 {
		t.Fatalf("translate∘scale: got %v, want 16", x)
	}

	ts := Scale(2, 2).Multiply(Translate(10, 0))
	x, _ = ts.Apply(3, 0)
	if x != 26 {
		t.Fatalf("scale∘translate: got %v, want 26", x)
	}
}
