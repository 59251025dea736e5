package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

// Entry is one file's line in the run manifest.
type Entry struct {
	MetaID     int64            `json:"metaId"`
	FileID     int64            `json:"fileId"`
	FileName   string           `json:"fileName"`
	OutputFile string           `json:"outputFile,omitempty"`
	Format     string           `json:"format,omitempty"`
	Status     apperrors.Status `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	TextLength int              `json:"textLength"`
	Passages   int              `json:"passages"`
	Questions  int              `json:"questions"`
	DurationMs int64            `json:"durationMs"`
	StagesMs   map[string]int64 `json:"stagesMs,omitempty"`
}

// Manifest is append-only and safe for concurrent use.
type Manifest struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Manifest) Add(e Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

// Entries returns a copy ordered by meta then file id, so the output does
// not depend on worker scheduling.
func (m *Manifest) Entries() []Entry {
	m.mu.Lock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MetaID != out[j].MetaID {
			return out[i].MetaID < out[j].MetaID
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}

// Summary counts entries per status.
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Skip    int `json:"skip"`
	Error   int `json:"error"`
}

func (m *Manifest) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{Total: len(m.entries)}
	for _, e := range m.entries {
		switch e.Status {
		case apperrors.StatusSuccess:
			s.Success++
		case apperrors.StatusSkip:
			s.Skip++
		default:
			s.Error++
		}
	}
	return s
}

// WriteFile stores the manifest as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
