package store

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Codec serializes partition values. Values written with compression on
// can always be read back, whatever the current setting.
type Codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewCodec creates a codec
func NewCodec(compress bool) (*Codec, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	c := &Codec{compress: compress, dec: dec}
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		c.enc = enc
	}
	return c, nil
}

// Marshal encodes v
func (c *Codec) Marshal(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if c.enc == nil {
		return data, nil
	}
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Unmarshal decodes data into out
func (c *Codec) Unmarshal(data []byte, out any) error {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
		data = raw
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Close releases encoder and decoder resources
func (c *Codec) Close() {
	if c.enc != nil {
		c.enc.Close()
	}
	c.dec.Close()
}
