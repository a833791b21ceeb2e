package id

import (
	"bytes"
	"testing"
)

func TestNextMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if bytes.Compare(next[:], prev[:]) <= 0 {
			t.Fatalf("id not increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestNextClockBackwards(t *testing.T) {
	g := NewGenerator()
	times := []int64{100, 100, 50, 50}
	idx := 0
	orig := nowMs
	nowMs = func() int64 { v := times[idx%len(times)]; idx++; return v }
	defer func() { nowMs = orig }()

	prev := g.Next()
	for i := 0; i < 3; i++ {
		next := g.Next()
		if bytes.Compare(next[:], prev[:]) <= 0 {
			t.Fatalf("id regressed with backwards clock")
		}
		prev = next
	}
}

func TestStringHex(t *testing.T) {
	var i ID
	i[0] = 0xab
	i[15] = 0x01
	s := i.String()
	if len(s) != 32 || s[:2] != "ab" || s[30:] != "01" {
		t.Fatalf("unexpected hex: %s", s)
	}
}
