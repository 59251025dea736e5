// Package record tokenizes decoded HWP section streams into tagged records
// and turns paragraph-text records into strings.
package record

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

// TagID identifies a record's type. Only paragraph text is interpreted;
// every other tag is skipped by size.
type TagID uint16

const TagParaText TagID = 67

const (
	headerSize    = 4
	extendedSize  = 0xFFF
	extendedSkip  = 12
	tagMask       = 0x3FF
	levelShift    = 10
	levelMask     = 0x3FF
	sizeShift     = 20
	sizeFieldMask = 0xFFF
)

type Record struct {
	Tag     TagID
	Level   uint16
	Payload []byte
}

// Tokenize splits buf into records. If a header or payload runs past the
// end of buf, the records read so far are returned with an error wrapping
// ErrTruncated.
func Tokenize(buf []byte) ([]Record, error) {
	var records []Record
	offset := 0
	for offset+headerSize <= len(buf) {
		h := binary.LittleEndian.Uint32(buf[offset:])
		offset += headerSize

		size := int((h >> sizeShift) & sizeFieldMask)
		if size == extendedSize {
			if offset+4 > len(buf) {
				return records, fmt.Errorf("%w: extended size header at offset %d", apperrors.ErrTruncated, offset-headerSize)
			}
			size = int(binary.LittleEndian.Uint32(buf[offset:]))
			offset += 4
		}
		if size < 0 || size > len(buf)-offset {
			return records, fmt.Errorf("%w: record at offset %d declares %d bytes, %d remain",
				apperrors.ErrTruncated, offset, size, len(buf)-offset)
		}
		records = append(records, Record{
			Tag:     TagID(h & tagMask),
			Level:   uint16((h >> levelShift) & levelMask),
			Payload: buf[offset : offset+size],
		})
		offset += size
	}
	return records, nil
}

// isExtendedControl reports whether code anchors an inline object whose
// 12-byte reference follows in the payload.
func isExtendedControl(code uint16) bool {
	switch code {
	case 1, 2, 3, 11, 12, 13, 14, 15, 16, 17, 18, 21, 22, 23, 24:
		return true
	}
	return false
}

// DecodeParaText decodes a PARA_TEXT payload of UTF-16LE code units.
// The extended-control check runs first, so 13 (paragraph end) is consumed
// with its 12 bytes rather than emitted as a line break.
func DecodeParaText(payload []byte) string {
	var sb strings.Builder
	end := len(payload)
	pos := 0
	for pos+1 < end {
		code := binary.LittleEndian.Uint16(payload[pos:])
		pos += 2
		if code == 0 {
			break
		}
		if isExtendedControl(code) {
			pos += extendedSkip
			if pos > end {
				break
			}
			continue
		}
		switch {
		case code == 4 || code == 10:
			sb.WriteByte('\n')
		case code == 9:
			sb.WriteByte('\t')
		case code == 30 || code == 31:
			sb.WriteByte(' ')
		case code < 32:
		case utf16.IsSurrogate(rune(code)):
			if code < 0xDC00 && pos+1 < end {
				low := binary.LittleEndian.Uint16(payload[pos:])
				if r := utf16.DecodeRune(rune(code), rune(low)); r != unicode.ReplacementChar {
					sb.WriteRune(r)
					pos += 2
					continue
				}
			}
			sb.WriteRune(unicode.ReplacementChar)
		default:
			sb.WriteRune(rune(code))
		}
	}
	return sb.String()
}

// AssembleStream returns the non-blank paragraph runs of one decoded
// section in order. A truncated tail keeps the runs before it and is
// reported through the error.
func AssembleStream(buf []byte) ([]string, error) {
	records, err := Tokenize(buf)
	var runs []string
	for _, rec := range records {
		if rec.Tag != TagParaText {
			continue
		}
		text := DecodeParaText(rec.Payload)
		if strings.TrimSpace(text) != "" {
			runs = append(runs, text)
		}
	}
	return runs, err
}
