package halcore

import "testing"

func TestEdgeString(t *testing.T) {
	cases := map[Edge]string{
		EdgeNone:    "none",
		EdgeRising:  "rising",
		EdgeFalling: "falling",
		EdgeBoth:    "both",
		Edge(9):     "none",
	}
	for e, want := range cases {
		if got := e.String(); got != want {
			t.Errorf("Edge(%d) = %q want %q", e, got, want)
		}
	}
}
