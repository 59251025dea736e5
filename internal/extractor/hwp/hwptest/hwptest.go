// Package hwptest builds HWP v5 fixtures: tagged records, section streams
// and whole compound documents.
package hwptest

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"unicode/utf16"

	"github.com/edenschool/examparse/internal/extractor/cfb/cfbtest"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

const (
	TagParaHeader = 66
	TagParaText   = 67
	TagCharShape  = 68

	paraEnd = 13
)

// Record encodes one record header plus payload, switching to the
// extended size form for payloads of 0xFFF bytes or more.
func Record(tag uint16, level uint16, payload []byte) []byte {
	var buf bytes.Buffer
	size := len(payload)
	h := uint32(tag&0x3FF) | uint32(level&0x3FF)<<10
	if size >= 0xFFF {
		h |= 0xFFF << 20
		binary.Write(&buf, binary.LittleEndian, h)
		binary.Write(&buf, binary.LittleEndian, uint32(size))
	} else {
		h |= uint32(size) << 20
		binary.Write(&buf, binary.LittleEndian, h)
	}
	buf.Write(payload)
	return buf.Bytes()
}

// Units encodes s as UTF-16LE with no terminator. '\n' becomes the HWP
// line-break code 10.
func Units(s string) []byte {
	var buf bytes.Buffer
	for _, u := range utf16.Encode([]rune(s)) {
		binary.Write(&buf, binary.LittleEndian, u)
	}
	return buf.Bytes()
}

// Code encodes a single control code.
func Code(c uint16) []byte {
	return []byte{byte(c), byte(c >> 8)}
}

// ExtendedControl encodes an extended control code followed by its 12-byte
// object reference, filled with filler.
func ExtendedControl(code uint16, filler byte) []byte {
	out := Code(code)
	for i := 0; i < 12; i++ {
		out = append(out, filler)
	}
	return out
}

// ParaText is a PARA_TEXT payload for s, closed by a paragraph end.
func ParaText(s string) []byte {
	return append(Units(s), ExtendedControl(paraEnd, 0)...)
}

// Section encodes one paragraph per string, each as a PARA_HEADER, a
// PARA_TEXT and a CHAR_SHAPE record, the way real sections interleave them.
func Section(paragraphs ...string) []byte {
	var buf bytes.Buffer
	for _, p := range paragraphs {
		buf.Write(Record(TagParaHeader, 0, make([]byte, 22)))
		buf.Write(Record(TagParaText, 1, ParaText(p)))
		buf.Write(Record(TagCharShape, 1, make([]byte, 8)))
	}
	return buf.Bytes()
}

// FileHeader is the 256-byte FileHeader stream with the given properties
// bits at offset 36.
func FileHeader(properties uint32) []byte {
	out := make([]byte, 256)
	copy(out, "HWP Document File")
	binary.LittleEndian.PutUint32(out[32:], 0x05000300)
	binary.LittleEndian.PutUint32(out[36:], properties)
	return out
}

// RawDeflate compresses b without zlib framing.
func RawDeflate(b []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestCompression)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

// ZlibDeflate compresses b with zlib framing.
func ZlibDeflate(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

// Options shape a Document.
type Options struct {
	Properties uint32
	// NoFileHeader omits the FileHeader stream entirely.
	NoFileHeader bool
	// Encode overrides how each section stream is stored. Nil stores raw
	// deflate when bit 0 of Properties is set and plain bytes otherwise.
	Encode func(section []byte) []byte
}

// Document builds a complete HWP compound file whose sections hold the
// given paragraphs, in order Section0..SectionN.
func Document(opts Options, sections ...[]string) []byte {
	encode := opts.Encode
	if encode == nil {
		encode = func(b []byte) []byte {
			if opts.Properties&1 != 0 {
				return RawDeflate(b)
			}
			return b
		}
	}
	var files []cfbtest.File
	if !opts.NoFileHeader {
		files = append(files, cfbtest.File{Path: "FileHeader", Data: FileHeader(opts.Properties)})
	}
	files = append(files, cfbtest.File{Path: "DocInfo", Data: RawDeflate([]byte("docinfo"))})
	for i, paragraphs := range sections {
		files = append(files, cfbtest.File{
			Path: "BodyText/Section" + strconv.Itoa(i),
			Data: encode(Section(paragraphs...)),
		})
	}
	return cfbtest.Build(files)
}

// Compressed builds a compressed document, the common case.
func Compressed(sections ...[]string) []byte {
	return Document(Options{Properties: 1}, sections...)
}
