// Package extractor picks the text extractor for an exam file by extension
// and content signature and normalises its result.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/edenschool/examparse/internal/extractor/hwp"
	"github.com/edenschool/examparse/internal/extractor/hwpx"
	"github.com/edenschool/examparse/internal/extractor/pdf"
	"github.com/edenschool/examparse/internal/extractor/stream"
	apperrors "github.com/edenschool/examparse/pkg/errors"
)

type Format string

const (
	FormatHWP  Format = "hwp"
	FormatHWPX Format = "hwpx"
	FormatPDF  Format = "pdf"
)

// Result is the text of one file plus decode diagnostics.
type Result struct {
	Format            Format
	Text              string
	Sections          int
	Runs              int
	TruncatedSections int
	Strategies        map[string]int
}

// Extractor handles one file format.
type Extractor interface {
	Format() Format
	Extensions() []string
	Sniff(buf []byte) bool
	Extract(ctx context.Context, buf []byte) (Result, error)
}

type Registry struct {
	formats []Extractor
}

// NewRegistry returns a registry with the HWP, HWPX and PDF extractors.
// decoder may be nil for the default inflate chain.
func NewRegistry(decoder *stream.Decoder) *Registry {
	r := &Registry{}
	r.Register(hwpExtractor{x: hwp.New(decoder)})
	r.Register(hwpxExtractor{})
	r.Register(pdfExtractor{})
	return r
}

func (r *Registry) Register(x Extractor) {
	r.formats = append(r.formats, x)
}

// Detect chooses by extension when the content agrees, otherwise by
// content signature. A known extension with unrecognised content still
// selects that extractor so the failure is reported as corruption.
func (r *Registry) Detect(name string, buf []byte) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var byExt Extractor
	for _, x := range r.formats {
		for _, e := range x.Extensions() {
			if e == ext {
				byExt = x
			}
		}
	}
	if byExt != nil && byExt.Sniff(buf) {
		return byExt, nil
	}
	for _, x := range r.formats {
		if x.Sniff(buf) {
			return x, nil
		}
	}
	if byExt != nil {
		return byExt, nil
	}
	return nil, apperrors.Newf(apperrors.ErrUnsupportedFormat, apperrors.StatusSkip, "%q", ext)
}

func (r *Registry) Extract(ctx context.Context, name string, buf []byte) (Result, error) {
	x, err := r.Detect(name, buf)
	if err != nil {
		return Result{}, err
	}
	res, err := x.Extract(ctx, buf)
	res.Format = x.Format()
	if err != nil {
		return res, fmt.Errorf("extracting %s: %w", x.Format(), err)
	}
	return res, nil
}

// Formats lists registered formats with their extensions.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.formats))
	for _, x := range r.formats {
		out = append(out, string(x.Format())+" ("+strings.Join(x.Extensions(), ", ")+")")
	}
	return out
}

type hwpExtractor struct {
	x *hwp.Extractor
}

func (hwpExtractor) Format() Format        { return FormatHWP }
func (hwpExtractor) Extensions() []string  { return []string{".hwp"} }
func (hwpExtractor) Sniff(buf []byte) bool { return hwp.Sniff(buf) }

func (h hwpExtractor) Extract(ctx context.Context, buf []byte) (Result, error) {
	text, st, err := h.x.Extract(ctx, buf)
	return Result{
		Text:              text,
		Sections:          st.Sections,
		Runs:              st.Runs,
		TruncatedSections: st.TruncatedSections,
		Strategies:        st.Strategies,
	}, err
}

type hwpxExtractor struct{}

func (hwpxExtractor) Format() Format        { return FormatHWPX }
func (hwpxExtractor) Extensions() []string  { return []string{".hwpx"} }
func (hwpxExtractor) Sniff(buf []byte) bool { return hwpx.Sniff(buf) }

func (hwpxExtractor) Extract(ctx context.Context, buf []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text, st, err := hwpx.Extract(buf)
	return Result{Text: text, Sections: st.Sections, Runs: st.Runs}, err
}

type pdfExtractor struct{}

func (pdfExtractor) Format() Format        { return FormatPDF }
func (pdfExtractor) Extensions() []string  { return []string{".pdf"} }
func (pdfExtractor) Sniff(buf []byte) bool { return pdf.Sniff(buf) }

func (pdfExtractor) Extract(ctx context.Context, buf []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text, st, err := pdf.Extract(buf)
	return Result{Text: text, Sections: st.TextPages}, err
}
