// Package compress implements optional whole-chunk compression applied
// after fingerprinting and before encryption. Grounded in
// bureau-foundation-bureau/zombar-tunnelmesh's use of
// github.com/klauspost/compress/zstd for payload compression.
package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Result is the outcome of compressing a chunk. Compressed is false when
// the compressed form was not smaller than the plaintext — per spec,
// store_uncompressed must win that tie so size_compressed stays NULL.
type Result struct {
	Data       []byte
	Compressed bool
}

// Compressor compresses and decompresses chunk payloads with zstd.
// Level default is 3, matching original_source's default compression level.
type Compressor struct {
	enabled bool
	level   zstd.EncoderLevel

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// New builds a Compressor. enabled=false makes Compress a no-op passthrough
// so the pipeline can treat compression uniformly regardless of config.
func New(enabled bool, level int) *Compressor {
	if level <= 0 {
		level = 3
	}
	return &Compressor{enabled: enabled, level: zstd.EncoderLevelFromZstd(level)}
}

func (c *Compressor) encoder() (*zstd.Encoder, error) {
	c.encOnce.Do(func() {
		c.enc, c.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	})
	return c.enc, c.encErr
}

func (c *Compressor) decoder() (*zstd.Decoder, error) {
	c.decOnce.Do(func() {
		c.dec, c.decErr = zstd.NewReader(nil)
	})
	return c.dec, c.decErr
}

// Compress returns the compressed form of data if it is smaller, otherwise
// returns data unchanged with Compressed=false. Compression never changes a
// chunk's fingerprint, since the fingerprint is always computed over
// plaintext before this step runs.
func (c *Compressor) Compress(data []byte) (Result, error) {
	if !c.enabled || len(data) == 0 {
		return Result{Data: data, Compressed: false}, nil
	}
	enc, err := c.encoder()
	if err != nil {
		return Result{}, fmt.Errorf("compress: encoder init: %w", err)
	}
	compressed := enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return Result{Data: data, Compressed: false}, nil
	}
	return Result{Data: compressed, Compressed: true}, nil
}

// Decompress reverses Compress. compressed must match what Compress
// reported via Result.Compressed for this chunk.
func (c *Compressor) Decompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	dec, err := c.decoder()
	if err != nil {
		return nil, fmt.Errorf("compress: decoder init: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: decode: %w", err)
	}
	return out, nil
}

// Enabled reports whether this Compressor will attempt compression.
func (c *Compressor) Enabled() bool { return c.enabled }
