package compress

import (
	"bytes"
	"testing"
)

func TestCompressor_Disabled_Passthrough(t *testing.T) {
	t.Parallel()
	c := New(false, 3)
	data := []byte("hello world")

	res, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.Compressed {
		t.Error("Compress() Compressed = true, want false when disabled")
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("Compress() changed data while disabled")
	}
}

func TestCompressor_RoundTrip(t *testing.T) {
	t.Parallel()
	c := New(true, 3)
	data := bytes.Repeat([]byte("compressible repeated text "), 200)

	res, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !res.Compressed {
		t.Fatal("Compress() Compressed = false, want true for highly repetitive data")
	}
	if len(res.Data) >= len(data) {
		t.Fatalf("Compress() produced %d bytes, want smaller than %d", len(res.Data), len(data))
	}

	out, err := c.Decompress(res.Data, res.Compressed)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("Decompress(Compress(data)) != data")
	}
}

func TestCompressor_IncompressibleFallsBackToRaw(t *testing.T) {
	t.Parallel()
	c := New(true, 3)
	// Small/random-ish data that won't shrink under zstd.
	data := []byte{0x01}

	res, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.Compressed {
		t.Error("Compress() Compressed = true for single-byte input, want false (store_uncompressed wins ties)")
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("Compress() altered data when falling back to uncompressed storage")
	}
}

func TestCompressor_EmptyInput(t *testing.T) {
	t.Parallel()
	c := New(true, 3)
	res, err := c.Compress(nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if res.Compressed {
		t.Error("Compress() Compressed = true for empty input, want false")
	}
}
