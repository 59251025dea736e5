package cfb_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/edenschool/examparse/internal/extractor/cfb"
	"github.com/edenschool/examparse/internal/extractor/cfb/cfbtest"
	apperrors "github.com/edenschool/examparse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReadsMiniAndRegularStreams(t *testing.T) {
	small := []byte("file header bytes")
	large := bytes.Repeat([]byte("0123456789abcdef"), 600) // 9600 bytes, past the mini cutoff

	buf := cfbtest.Build([]cfbtest.File{
		{Path: "FileHeader", Data: small},
		{Path: "BodyText/Section0", Data: large},
	})
	c, err := cfb.Open(buf)
	require.NoError(t, err)

	header, ok := c.Find("fileheader")
	require.True(t, ok)
	assert.Equal(t, small, header.Data)

	section, ok := c.Lookup("bodytext/SECTION0")
	require.True(t, ok)
	assert.Equal(t, large, section.Data)
	assert.Equal(t, int64(len(large)), section.Size)

	assert.Equal(t, []string{"FileHeader", "BodyText/Section0"}, c.Paths())
}

func TestSectionsSortedNumerically(t *testing.T) {
	buf := cfbtest.Build([]cfbtest.File{
		{Path: "BodyText/Section10", Data: []byte("ten")},
		{Path: "BodyText/Section2", Data: []byte("two")},
		{Path: "BodyText/Section0", Data: []byte("zero")},
		{Path: "DocInfo", Data: []byte("info")},
	})
	c, err := cfb.Open(buf)
	require.NoError(t, err)

	sections, err := c.Sections()
	require.NoError(t, err)
	var got []string
	for _, s := range sections {
		got = append(got, string(s.Data))
	}
	assert.Equal(t, []string{"zero", "two", "ten"}, got)
}

func TestSectionsMissing(t *testing.T) {
	c, err := cfb.Open(cfbtest.Build([]cfbtest.File{{Path: "FileHeader", Data: []byte("x")}}))
	require.NoError(t, err)

	_, err = c.Sections()
	assert.ErrorIs(t, err, apperrors.ErrNoBodySections)
	assert.Equal(t, apperrors.StatusSkip, apperrors.ManifestStatus(err))
}

func TestOpenRejectsCorruptInput(t *testing.T) {
	valid := cfbtest.Build([]cfbtest.File{{Path: "BodyText/Section0", Data: []byte("text")}})

	badSignature := append([]byte(nil), valid...)
	badSignature[0] = 0x00

	badShift := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badShift[0x1E:], 10)

	// Point the directory's FAT entry at itself.
	cycle := append([]byte(nil), valid...)
	dirStart := binary.LittleEndian.Uint32(cycle[0x30:])
	binary.LittleEndian.PutUint32(cycle[512+4*dirStart:], dirStart)

	// Directory sector beyond the end of the file.
	outOfRange := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(outOfRange[0x30:], 5000)

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"short", valid[:100]},
		{"bad signature", badSignature},
		{"bad sector shift", badShift},
		{"fat cycle", cycle},
		{"sector out of range", outOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := cfb.Open(tt.buf)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, apperrors.ErrCorruptContainer)
		})
	}
}
