package pdf

import (
	"testing"

	apperrors "github.com/edenschool/examparse/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTextFromContentStream(t *testing.T) {
	stream := []byte(`BT
/F1 12 Tf
72 720 Td
(Read the passage and answer.) Tj
0 -14 Td
[(Choose ) -120 (one) ] TJ
T*
(\(1\) first\040choice) Tj
(second line) '
ET
`)
	got := TextFromContentStream(stream)
	assert.Equal(t, "Read the passage and answer.\nChoose one\n(1) first choice\nsecond line", got)
}

func TestDecodeLiteral(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`plain`, "plain"},
		{`a\\b`, `a\b`},
		{`tab\there`, "tab\there"},
		{`\101\102`, "AB"},
		{`\q`, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeLiteral([]byte(tt.raw)))
		})
	}
}

func TestExtractRejectsNonPDF(t *testing.T) {
	assert.False(t, Sniff([]byte("PK\x03\x04")))
	_, _, err := Extract([]byte("%PDF-1.4\nnot really a pdf"))
	assert.ErrorIs(t, err, apperrors.ErrCorruptContainer)
}
