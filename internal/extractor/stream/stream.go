// Package stream decodes HWP body-text sections. Sections are normally
// raw-deflated, but some writers emit zlib-framed or plain sections, so
// decoding walks an ordered list of strategies and never fails.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// MaxDecodedSize bounds the output of a single strategy so a corrupt or
// hostile stream cannot inflate without limit.
const MaxDecodedSize = 64 << 20

var errTooLarge = errors.New("decoded stream exceeds size limit")

// Strategy is one fallible decoding attempt.
type Strategy struct {
	Name   string
	Decode func(raw []byte) ([]byte, error)
}

const (
	NameRawInflate  = "raw-inflate"
	NameZlibInflate = "zlib-inflate"
	NameRaw         = "raw"
)

// DefaultChain is the order the decoder tries for compressed documents.
var DefaultChain = []Strategy{
	{Name: NameRawInflate, Decode: RawInflate},
	{Name: NameZlibInflate, Decode: ZlibInflate},
}

// Decoded is a section's bytes plus the strategy that produced them.
type Decoded struct {
	Data     []byte
	Strategy string
	// Attempts holds the error of every strategy that failed before the
	// winner, for debug logging.
	Attempts []error
}

type Decoder struct {
	chain []Strategy
}

func NewDecoder(chain []Strategy) *Decoder {
	if len(chain) == 0 {
		chain = DefaultChain
	}
	return &Decoder{chain: chain}
}

// Decode returns raw unchanged when compressed is false. Otherwise the
// first strategy that succeeds wins and the raw bytes are the last resort.
func (d *Decoder) Decode(raw []byte, compressed bool) Decoded {
	if !compressed {
		return Decoded{Data: raw, Strategy: NameRaw}
	}
	var attempts []error
	for _, s := range d.chain {
		out, err := s.Decode(raw)
		if err == nil {
			return Decoded{Data: out, Strategy: s.Name, Attempts: attempts}
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.Name, err))
	}
	return Decoded{Data: raw, Strategy: NameRaw, Attempts: attempts}
}

// Decode runs the default chain.
func Decode(raw []byte, compressed bool) Decoded {
	return NewDecoder(nil).Decode(raw, compressed)
}

// RawInflate decodes a deflate stream without zlib framing.
func RawInflate(raw []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	return readAllLimited(r)
}

// ZlibInflate decodes a zlib-framed deflate stream, checksum included.
func ZlibInflate(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readAllLimited(r)
}

// readAllLimited reads to EOF. A stream that ends before its final block
// surfaces io.ErrUnexpectedEOF from the inflater and fails the strategy.
func readAllLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxDecodedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecodedSize {
		return nil, errTooLarge
	}
	return out, nil
}
