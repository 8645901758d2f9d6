package monitor

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestRingPutTake(t *testing.T) {
	r := NewRing(8)

	mustTryPut(t, r, []byte("abc"))
	checkRingInvariant(t, r)

	buf := make([]byte, 8)
	n := r.Take(buf)
	if got := string(buf[:n]); got != "abc" {
		t.Fatalf("expected %q, got %q", "abc", got)
	}
	checkRingInvariant(t, r)
}

func TestRingTryPutAllOrNothing(t *testing.T) {
	r := NewRing(4)

	mustTryPut(t, r, []byte("abc"))

	err := r.TryPut([]byte("de"))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("failed put changed length to %d", r.Len())
	}

	buf := make([]byte, 4)
	if got := string(buf[:r.Take(buf)]); got != "abc" {
		t.Fatalf("expected %q, got %q", "abc", got)
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing(5)

	mustTryPut(t, r, []byte("abcd"))

	buf := make([]byte, 3)
	if got := string(buf[:r.Take(buf)]); got != "abc" {
		t.Fatalf("expected %q, got %q", "abc", got)
	}

	// start=3, count=1: the next put wraps past the end of storage.
	mustTryPut(t, r, []byte("wxyz"))
	checkRingInvariant(t, r)

	out := make([]byte, 5)
	if got := string(out[:r.Take(out)]); got != "dwxyz" {
		t.Fatalf("expected %q, got %q", "dwxyz", got)
	}
	checkRingInvariant(t, r)
}

func TestRingTakeUpTo(t *testing.T) {
	r := NewRing(8)
	mustTryPut(t, r, []byte("hello"))

	small := make([]byte, 2)
	if n := r.Take(small); n != 2 || string(small) != "he" {
		t.Fatalf("expected 2 bytes %q, got %d %q", "he", n, small[:n])
	}

	large := make([]byte, 10)
	if n := r.Take(large); n != 3 || string(large[:n]) != "llo" {
		t.Fatalf("expected 3 bytes %q, got %d %q", "llo", n, large[:n])
	}

	if n := r.Take(large); n != 0 {
		t.Fatalf("expected 0 bytes from empty ring, got %d", n)
	}
}

func TestRingClose(t *testing.T) {
	r := NewRing(4)
	mustTryPut(t, r, []byte("ab"))

	r.Close()
	r.Close()
	if !r.Closed() {
		t.Fatal("expected ring to be closed")
	}

	buf := make([]byte, 4)
	if n := r.Take(buf); n != 2 {
		t.Fatalf("expected buffered bytes after close, got %d", n)
	}
	if n := r.Take(buf); n != 0 {
		t.Fatalf("expected end of stream, got %d bytes", n)
	}
	if !r.Closed() {
		t.Fatal("closed flag reverted")
	}
}

func TestRingCapacityClamp(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"Zero", 0, 1},
		{"Negative", -5, 1},
		{"One", 1, 1},
		{"Large", 4096, 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing(tt.capacity)
			if r.Cap() != tt.want {
				t.Fatalf("expected capacity %d, got %d", tt.want, r.Cap())
			}
			checkRingInvariant(t, r)
		})
	}
}

func TestRingFIFOUnderChurn(t *testing.T) {
	r := NewRing(7)

	var (
		want bytes.Buffer
		got  bytes.Buffer
	)
	buf := make([]byte, 3)
	for i := range 200 {
		chunk := bytes.Repeat([]byte{byte(i)}, i%4+1)
		for r.TryPut(chunk) != nil {
			got.Write(buf[:r.Take(buf)])
			checkRingInvariant(t, r)
		}
		want.Write(chunk)
		checkRingInvariant(t, r)
	}
	for r.Len() > 0 {
		got.Write(buf[:r.Take(buf)])
	}

	if !bytes.Equal(want.Bytes(), got.Bytes()) {
		t.Fatal("ring reordered or lost bytes")
	}
}

func mustTryPut(t *testing.T, r *Ring, p []byte) {
	t.Helper()
	if err := r.TryPut(p); err != nil {
		t.Fatalf("TryPut(%q) failed: %v", p, err)
	}
}

func checkRingInvariant(t *testing.T, r *Ring) {
	t.Helper()
	if r.Remaining()+r.Len() != r.Cap() {
		t.Fatalf("remaining %d + len %d != cap %d", r.Remaining(), r.Len(), r.Cap())
	}
	if r.Len() < 0 || r.Len() > r.Cap() {
		t.Fatalf("len %d out of range [0, %d]", r.Len(), r.Cap())
	}
	if r.start < 0 || r.start >= r.Cap() {
		t.Fatalf("start %d out of range", r.start)
	}
}
