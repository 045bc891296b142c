// Package chunk implements the content-defined and fixed-size chunking
// strategies used to split a backup stream into independently
// deduplicated, fingerprinted pieces.
package chunk

import "io"

// Chunk is one piece of a stream: its byte offset within the stream and
// its plaintext bytes. Engines emit these in ascending, gap-free,
// non-overlapping offset order.
type Chunk struct {
	Offset int64
	Data   []byte
}

// Engine splits a stream into an ordered, gap-free sequence of Chunks
// covering [0, streamLen). The empty stream yields zero chunks. An Engine
// holds no state across streams — a fresh call to Split starts clean.
type Engine interface {
	// Split reads r to completion and invokes emit once per chunk, in
	// ascending offset order. emit must not retain the passed slice beyond
	// the call — data is reused by some Engine implementations.
	Split(r io.Reader, emit func(Chunk) error) error
}

// NewEngine builds the Engine selected by strategy ("cdc" or "fixed").
// size is the target size for CDC (min=size/4, max=size*4) or the exact
// block size for Fixed.
func NewEngine(strategy string, size int) (Engine, error) {
	switch strategy {
	case "cdc", "":
		return NewCDCEngine(size), nil
	case "fixed":
		return NewFixedEngine(size), nil
	default:
		return nil, &UnknownStrategyError{Strategy: strategy}
	}
}

// UnknownStrategyError is returned by NewEngine for an unrecognized
// chunk_strategy configuration value.
type UnknownStrategyError struct{ Strategy string }

func (e *UnknownStrategyError) Error() string {
	return "unknown chunk strategy: " + e.Strategy
}
