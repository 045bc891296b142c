package chunk

import "io"

// FixedEngine splits a stream into non-overlapping blocks of exactly Size
// bytes; the final block may be shorter. No third-party library is used
// here: fixed-block slicing is a direct io.ReadFull loop, which is the
// idiomatic stdlib way to do it and nothing in the retrieval pack wraps
// this particular case in a library of its own.
type FixedEngine struct {
	Size int
}

// NewFixedEngine creates a fixed-size chunker. A non-positive size falls
// back to 1 MiB.
func NewFixedEngine(size int) *FixedEngine {
	if size <= 0 {
		size = 1 << 20
	}
	return &FixedEngine{Size: size}
}

var _ Engine = (*FixedEngine)(nil)

// Split implements Engine.
func (e *FixedEngine) Split(r io.Reader, emit func(Chunk) error) error {
	var offset int64
	buf := make([]byte, e.Size)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if err := emit(Chunk{Offset: offset, Data: data}); err != nil {
				return err
			}
			offset += int64(n)
		}
		switch err {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return err
		}
	}
}
