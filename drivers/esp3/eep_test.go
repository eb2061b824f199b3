package esp3

import "testing"

func TestProfileDecode(t *testing.T) {
	cases := []struct {
		p    Profile
		db   [4]byte
		want int16
	}{
		{ProfileA50205, [4]byte{0, 0, 0xFF, 0x08}, 0},
		{ProfileA50205, [4]byte{0, 0, 0x00, 0x08}, 400},
		{ProfileA50205, [4]byte{0, 0, 0x80, 0x08}, 199},
		{ProfileA50403, [4]byte{0, 0x00, 0x00, 0x08}, -200},
		{ProfileA50403, [4]byte{0, 0x03, 0xFF, 0x08}, 600},
		{ProfileA50403, [4]byte{0, 0xFE, 0x00, 0x08}, 200}, // 512; upper bits of DB2 ignored
		{ProfileA50904, [4]byte{0, 0, 0xFF, 0x08}, 510},
		{ProfileA50904, [4]byte{0, 0, 100, 0x08}, 200},
	}
	for _, c := range cases {
		got, ok := c.p.Decode(c.db)
		if !ok || got != c.want {
			t.Errorf("%s %v: got %d ok=%v, want %d", c.p, c.db, got, ok, c.want)
		}
	}
	if _, ok := Profile(0xA51001).Decode([4]byte{}); ok {
		t.Fatal("unknown profile decoded")
	}
}

func TestParseProfile(t *testing.T) {
	for _, s := range []string{"A5-02-05", "a50205", "A5-0205"} {
		p, ok := ParseProfile(s)
		if !ok || p != ProfileA50205 {
			t.Fatalf("ParseProfile(%q) = %v %v", s, p, ok)
		}
	}
	for _, s := range []string{"", "A5-02", "A5-02-05-01", "A5-02-0G"} {
		if _, ok := ParseProfile(s); ok {
			t.Fatalf("ParseProfile(%q) accepted", s)
		}
	}
	if got := ProfileA50403.String(); got != "A5-04-03" {
		t.Fatalf("String() = %q", got)
	}
	if ProfileA50904.RORG() != RORG4BS || !ProfileA50904.Supported() || Profile(0xD20101).Supported() {
		t.Fatal("profile metadata wrong")
	}
}
