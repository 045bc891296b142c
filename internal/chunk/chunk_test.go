package chunk

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func collect(t *testing.T, e Engine, data []byte) []Chunk {
	t.Helper()
	var chunks []Chunk
	err := e.Split(bytes.NewReader(data), func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	return chunks
}

func reassemble(chunks []Chunk) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out
}

func TestNewEngine_Dispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strategy string
		wantErr  bool
	}{
		{strategy: "cdc", wantErr: false},
		{strategy: "", wantErr: false},
		{strategy: "fixed", wantErr: false},
		{strategy: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			t.Parallel()
			_, err := NewEngine(tt.strategy, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEngine(%q) error = %v, wantErr %v", tt.strategy, err, tt.wantErr)
			}
		})
	}
}

func TestCDCEngine_EmptyStream(t *testing.T) {
	t.Parallel()
	e := NewCDCEngine(1 << 16)
	chunks := collect(t, e, nil)
	if len(chunks) != 0 {
		t.Fatalf("Split() on empty stream = %d chunks, want 0", len(chunks))
	}
}

func TestCDCEngine_ReassemblesExactly(t *testing.T) {
	t.Parallel()
	e := NewCDCEngine(4096)
	data := bytes.Repeat([]byte("0123456789abcdef"), 10000)

	chunks := collect(t, e, data)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks for %d bytes, want multiple", len(chunks), len(data))
	}
	if got := reassemble(chunks); !bytes.Equal(got, data) {
		t.Fatal("reassembled chunks do not equal original data")
	}
}

func TestCDCEngine_Deterministic(t *testing.T) {
	t.Parallel()
	data := bytes.Repeat([]byte("deterministic content here "), 5000)

	e1 := NewCDCEngine(4096)
	e2 := NewCDCEngine(4096)
	c1 := collect(t, e1, data)
	c2 := collect(t, e2, data)

	if len(c1) != len(c2) {
		t.Fatalf("chunk counts differ: %d vs %d", len(c1), len(c2))
	}
	for i := range c1 {
		if !bytes.Equal(c1[i].Data, c2[i].Data) {
			t.Fatalf("chunk %d differs between identical runs", i)
		}
		if c1[i].Offset != c2[i].Offset {
			t.Fatalf("chunk %d offset differs: %d vs %d", i, c1[i].Offset, c2[i].Offset)
		}
	}
}

func TestCDCEngine_InsertionOnlyShiftsLocalChunks(t *testing.T) {
	t.Parallel()
	// Non-periodic input: a short repeated phrase gives the rolling hash
	// too few distinct windows to ever hit a boundary, so every cut would
	// fall at max size and shift with the insertion.
	base := make([]byte, 93000)
	rand.New(rand.NewSource(1)).Read(base)
	modified := append(append([]byte{}, base[:1000]...), append([]byte("INSERTED"), base[1000:]...)...)

	e1 := NewCDCEngine(4096)
	e2 := NewCDCEngine(4096)
	c1 := collect(t, e1, base)
	c2 := collect(t, e2, modified)

	same := 0
	set := map[string]bool{}
	for _, c := range c1 {
		set[string(c.Data)] = true
	}
	for _, c := range c2 {
		if set[string(c.Data)] {
			same++
		}
	}
	if same == 0 {
		t.Fatal("CDC produced zero matching chunks after localized insertion, want most chunks unaffected")
	}
}

func TestFixedEngine_ExactMultiple(t *testing.T) {
	t.Parallel()
	e := NewFixedEngine(4)
	chunks := collect(t, e, []byte("aaaabbbbcccc"))
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Data) != 4 {
			t.Fatalf("chunk length = %d, want 4", len(c.Data))
		}
	}
}

func TestFixedEngine_ShortFinalChunk(t *testing.T) {
	t.Parallel()
	e := NewFixedEngine(4)
	chunks := collect(t, e, []byte("aaaabbb"))
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[1].Data) != 3 {
		t.Fatalf("final chunk length = %d, want 3", len(chunks[1].Data))
	}
	if got := reassemble(chunks); !bytes.Equal(got, []byte("aaaabbb")) {
		t.Fatal("reassembled chunks do not equal original data")
	}
}

func TestFixedEngine_EmptyStream(t *testing.T) {
	t.Parallel()
	e := NewFixedEngine(4)
	chunks := collect(t, e, nil)
	if len(chunks) != 0 {
		t.Fatalf("got %d chunks for empty stream, want 0", len(chunks))
	}
}

func TestFixedEngine_OffsetsAscending(t *testing.T) {
	t.Parallel()
	e := NewFixedEngine(3)
	chunks := collect(t, e, []byte("123456789"))
	for i, c := range chunks {
		want := int64(i * 3)
		if c.Offset != want {
			t.Fatalf("chunk %d offset = %d, want %d", i, c.Offset, want)
		}
	}
}

func TestFixedEngine_EmitDoesNotAlias(t *testing.T) {
	t.Parallel()
	e := NewFixedEngine(4)
	var saved [][]byte
	err := e.Split(bytes.NewReader([]byte("aaaabbbb")), func(c Chunk) error {
		saved = append(saved, c.Data)
		return nil
	})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !bytes.Equal(saved[0], []byte("aaaa")) || !bytes.Equal(saved[1], []byte("bbbb")) {
		t.Fatal("emitted chunk data was overwritten by reused buffer (aliasing bug)")
	}
}

func TestSplit_PropagatesEmitError(t *testing.T) {
	t.Parallel()
	wantErr := io.ErrClosedPipe
	e := NewFixedEngine(4)
	err := e.Split(bytes.NewReader([]byte("aaaabbbb")), func(c Chunk) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Split() error = %v, want %v", err, wantErr)
	}
}
