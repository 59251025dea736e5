package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/edenschool/examparse/internal/exam"
	"github.com/edenschool/examparse/pkg/kafka"
)

// Job is one message on the file-ingest topic.
type Job struct {
	MetaID   int64         `json:"metaId"`
	FileID   int64         `json:"fileId"`
	FileName string        `json:"fileName"`
	Path     string        `json:"path"`
	Category exam.Category `json:"category,omitempty"`
}

const maxFileNameLength = 255

// ValidationError holds per-field job problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Validate checks the fields a worker needs before it touches the file.
func (j Job) Validate() error {
	errs := make(map[string]string)
	if strings.TrimSpace(j.Path) == "" {
		errs["path"] = "path is required"
	}
	if j.FileID <= 0 {
		errs["fileId"] = "fileId must be positive"
	}
	if j.MetaID < 0 {
		errs["metaId"] = "metaId must not be negative"
	}
	if len(j.FileName) > maxFileNameLength {
		errs["fileName"] = fmt.Sprintf("fileName must be at most %d bytes", maxFileNameLength)
	}
	if j.Category != "" && !j.Category.Scored() && j.Category != exam.CategoryOther {
		errs["category"] = fmt.Sprintf("unknown category %q", j.Category)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// HandleMessage returns a Kafka MessageHandler that runs each job through
// p. Files are never retried, so only a cancelled context leaves the offset
// uncommitted.
func HandleMessage(p *Pipeline) kafka.MessageHandler {
	logger := slog.Default().With("component", "parse-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		job, err := kafka.DecodeJSON[Job](value)
		if err != nil {
			logger.Error("failed to decode file job",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := job.Validate(); err != nil {
			logger.Error("rejecting file job",
				"meta_id", job.MetaID,
				"file_id", job.FileID,
				"error", err,
			)
			return nil
		}
		name := job.FileName
		if name == "" {
			name = job.Path
		}
		p.Process(ctx, Input{
			MetaID:   job.MetaID,
			FileID:   job.FileID,
			FileName: name,
			Path:     job.Path,
			Category: job.Category,
		})
		return ctx.Err()
	}
}
