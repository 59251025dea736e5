// Package hwp extracts plain text from HWP v5 binary documents: compound
// container, per-section decompression, paragraph-text records.
package hwp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/edenschool/examparse/internal/extractor/cfb"
	"github.com/edenschool/examparse/internal/extractor/record"
	"github.com/edenschool/examparse/internal/extractor/stream"
	apperrors "github.com/edenschool/examparse/pkg/errors"
	"github.com/edenschool/examparse/pkg/logger"
)

const (
	fileHeaderName     = "FileHeader"
	propertiesOffset   = 36
	minFileHeaderBytes = propertiesOffset + 4

	flagCompressed   = 1 << 0
	flagPassword     = 1 << 1
	flagDistribution = 1 << 2
)

// Properties is the subset of the FileHeader flags the extractor acts on.
type Properties struct {
	Compressed   bool
	Password     bool
	Distribution bool
}

// ParseProperties reads the FileHeader stream. A missing or short stream
// means compressed, the format's default.
func ParseProperties(c *cfb.Container) Properties {
	e, ok := c.Find(fileHeaderName)
	if !ok || len(e.Data) < minFileHeaderBytes {
		return Properties{Compressed: true}
	}
	flags := binary.LittleEndian.Uint32(e.Data[propertiesOffset:])
	return Properties{
		Compressed:   flags&flagCompressed != 0,
		Password:     flags&flagPassword != 0,
		Distribution: flags&flagDistribution != 0,
	}
}

// Stats describes how a document was decoded.
type Stats struct {
	Sections          int
	Runs              int
	TruncatedSections int
	// Strategies counts sections per winning decode strategy.
	Strategies map[string]int
}

type Extractor struct {
	decoder *stream.Decoder
}

func New(decoder *stream.Decoder) *Extractor {
	if decoder == nil {
		decoder = stream.NewDecoder(nil)
	}
	return &Extractor{decoder: decoder}
}

// Extract returns the document's text: paragraph runs joined by newlines,
// sections in numeric order. A section whose record stream is truncated
// contributes the runs before the break; the document fails only if no
// text survives at all.
func (x *Extractor) Extract(ctx context.Context, buf []byte) (string, Stats, error) {
	stats := Stats{Strategies: make(map[string]int)}
	log := logger.FromContext(ctx).With("component", "hwp")

	container, err := cfb.Open(buf)
	if err != nil {
		return "", stats, fmt.Errorf("opening container: %w", err)
	}
	props := ParseProperties(container)
	if props.Password || props.Distribution {
		return "", stats, apperrors.Newf(apperrors.ErrEncrypted, apperrors.StatusSkip,
			"password=%t distribution=%t", props.Password, props.Distribution)
	}

	sections, err := container.Sections()
	if err != nil {
		return "", stats, fmt.Errorf("locating body text: %w", err)
	}

	var texts []string
	var truncated error
	for _, section := range sections {
		if err := ctx.Err(); err != nil {
			return "", stats, err
		}
		if len(section.Data) == 0 {
			continue
		}
		stats.Sections++
		decoded := x.decoder.Decode(section.Data, props.Compressed)
		stats.Strategies[decoded.Strategy]++
		if len(decoded.Attempts) > 0 {
			log.Debug("section decode fell back",
				"section", section.Path,
				"strategy", decoded.Strategy,
				"attempts", errors.Join(decoded.Attempts...),
			)
		}

		runs, err := record.AssembleStream(decoded.Data)
		if err != nil {
			stats.TruncatedSections++
			truncated = fmt.Errorf("%s: %w", section.Path, err)
			log.Warn("section record stream truncated",
				"section", section.Path,
				"runs_kept", len(runs),
				"error", err,
			)
		}
		stats.Runs += len(runs)
		texts = append(texts, runs...)
	}

	if len(texts) == 0 && truncated != nil {
		return "", stats, truncated
	}
	return strings.Join(texts, "\n"), stats, nil
}

// Extract runs a default Extractor.
func Extract(ctx context.Context, buf []byte) (string, Stats, error) {
	return New(nil).Extract(ctx, buf)
}

// Sniff reports whether buf starts with the compound-file signature.
func Sniff(buf []byte) bool {
	return len(buf) >= len(cfb.Signature) && string(buf[:len(cfb.Signature)]) == string(cfb.Signature)
}

