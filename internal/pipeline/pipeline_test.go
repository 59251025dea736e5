package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenschool/examparse/internal/events"
	"github.com/edenschool/examparse/internal/exam"
	"github.com/edenschool/examparse/internal/extractor"
	"github.com/edenschool/examparse/internal/extractor/hwp/hwptest"
	"github.com/edenschool/examparse/internal/store"
	apperrors "github.com/edenschool/examparse/pkg/errors"
	"github.com/edenschool/examparse/pkg/metrics"
	"github.com/edenschool/examparse/pkg/sqlite"
)

var examParagraphs = []string{
	"※ 다음 글을 읽고 물음에 답하시오.",
	"어느 날 아침 그는 오래된 책상 서랍을 열어 보았다.",
	"그 안에는 빛바랜 편지 한 통이 들어 있었다.",
	"- 김철수, 「편지」",
	"윗글에 대한 이해로 적절한 것은?",
	"① 그는 아침에 서랍을 열었다.",
	"② 서랍 안에는 사진이 들어 있었다.",
	"③ 편지는 새것이었다.",
	"④ 그는 편지를 버렸다.",
	"⑤ 그는 서랍을 잠갔다.",
	"[미래엔 국어]계남고24년1학기기말 ①",
	"윗글의 내용과 일치하지 않는 것은?",
	"① 그는 편지를 읽었다.",
	"② 그는 웃었다.",
	"③ 그는 울었다.",
	"④ 그는 잠들었다.",
	"⑤ 그는 떠났다.",
	"[미래엔 국어]계남고24년1학기기말 ②, ④",
}

func examHWP() []byte {
	return hwptest.Compressed(examParagraphs)
}

func newSQLiteWriter(t *testing.T) (*store.Writer, *sqlite.Client) {
	t.Helper()
	c, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, store.Migrate(context.Background(), c.DB, store.SQLite))
	return store.NewWriter(c, c.DB, store.SQLite), c
}

type fakeLedger struct {
	mu   sync.Mutex
	done map[store.FileRef]bool
	err  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{done: make(map[store.FileRef]bool)}
}

func (f *fakeLedger) Done(_ context.Context, ref store.FileRef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.done[ref], nil
}

func (f *fakeLedger) Mark(_ context.Context, ref store.FileRef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done[ref] {
		return false, nil
	}
	f.done[ref] = true
	return true, nil
}

type fakeWriter struct {
	mu        sync.Mutex
	calls     int
	err       error
	imported  bool
	importErr error
}

func (f *fakeWriter) Imported(context.Context, store.FileRef) (bool, error) {
	return f.imported, f.importErr
}

func (f *fakeWriter) WriteAnalysis(_ context.Context, a *exam.Analysis) (store.WriteStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return store.WriteStats{}, f.err
	}
	return store.WriteStats{Passages: len(a.Passages), Questions: a.QuestionCount()}, nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []events.FileProcessed
}

func (f *fakeTracker) Track(ev events.FileProcessed) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func TestProcessStoresExamFile(t *testing.T) {
	writer, db := newSQLiteWriter(t)
	out := t.TempDir()
	m := metrics.NewUnregistered()
	led := newFakeLedger()
	p := New(Options{OutputDir: out, WriteAnalysis: true}, Deps{
		Writer:     writer,
		SinkDriver: "sqlite",
		Ledger:     led,
		Metrics:    m,
	})

	res := p.Process(context.Background(), Input{MetaID: 7, FileID: 9, FileName: "[문학] 계남고 기말.hwp", Data: examHWP()})
	require.NoError(t, res.Err)

	assert.Equal(t, apperrors.StatusSuccess, res.Entry.Status)
	assert.Equal(t, "hwp", res.Entry.Format)
	assert.Equal(t, 1, res.Entry.Passages)
	assert.Equal(t, 2, res.Entry.Questions)
	assert.Equal(t, "meta_7_file_9.json", res.Entry.OutputFile)
	assert.Contains(t, res.Entry.StagesMs, "extract")
	assert.Contains(t, res.Entry.StagesMs, "segment")
	assert.Contains(t, res.Entry.StagesMs, "persist")

	written, err := os.ReadFile(filepath.Join(out, "meta_7_file_9.json"))
	require.NoError(t, err)
	want, err := MarshalAnalysis(res.Analysis)
	require.NoError(t, err)
	assert.Equal(t, want, written)

	var n int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM exam_question WHERE passage_id IS NOT NULL`).Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM exam_question_choice`).Scan(&n))
	assert.Equal(t, 10, n)

	assert.True(t, led.done[store.FileRef{MetaID: 7, FileID: 9}])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FilesProcessedTotal.WithLabelValues("success", "hwp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkWritesTotal.WithLabelValues("sqlite", "committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PassagesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SectionDecodeTotal.WithLabelValues("raw-inflate")))

	entries := p.Manifest().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "[문학] 계남고 기말.hwp", entries[0].FileName)
}

func TestProcessOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		opts     Options
		status   apperrors.Status
		sentinel error
	}{
		{
			name:     "no content",
			fileName: "a.hwp",
			data:     nil,
			status:   apperrors.StatusSkip,
			sentinel: apperrors.ErrEmptyContent,
		},
		{
			name:     "too large",
			fileName: "a.hwp",
			data:     examHWP(),
			opts:     Options{MaxFileSize: 16},
			status:   apperrors.StatusSkip,
			sentinel: apperrors.ErrTooLarge,
		},
		{
			name:     "image based",
			fileName: "a.hwp",
			data:     hwptest.Compressed([]string{"짧다"}),
			status:   apperrors.StatusSkip,
			sentinel: apperrors.ErrTooShort,
		},
		{
			name:     "unsupported format",
			fileName: "a.docx",
			data:     []byte("plain words in a word file"),
			status:   apperrors.StatusSkip,
			sentinel: apperrors.ErrUnsupportedFormat,
		},
		{
			name:     "encrypted",
			fileName: "a.hwp",
			data:     hwptest.Document(hwptest.Options{Properties: 1 | 2}, examParagraphs),
			status:   apperrors.StatusSkip,
			sentinel: apperrors.ErrEncrypted,
		},
		{
			name:     "corrupt container",
			fileName: "a.hwp",
			data:     []byte("not a compound file at all"),
			status:   apperrors.StatusError,
			sentinel: apperrors.ErrCorruptContainer,
		},
		{
			name:     "garbled",
			fileName: "a.hwp",
			data:     hwptest.Compressed([]string{strings.Repeat("\uE000", 60)}),
			status:   apperrors.StatusError,
			sentinel: apperrors.ErrGarbled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &fakeWriter{}
			p := New(tt.opts, Deps{Writer: writer})
			res := p.Process(context.Background(), Input{MetaID: 1, FileID: 2, FileName: tt.fileName, Data: tt.data})
			require.Error(t, res.Err)
			assert.ErrorIs(t, res.Err, tt.sentinel)
			assert.Equal(t, tt.status, res.Entry.Status)
			assert.NotEmpty(t, res.Entry.Reason)
			assert.Nil(t, res.Analysis)
			assert.Zero(t, writer.calls)
		})
	}
}

func TestProcessSkipsAlreadyProcessed(t *testing.T) {
	led := newFakeLedger()
	led.done[store.FileRef{MetaID: 1, FileID: 2}] = true
	writer := &fakeWriter{}
	p := New(Options{}, Deps{Writer: writer, Ledger: led})

	res := p.Process(context.Background(), Input{MetaID: 1, FileID: 2, FileName: "a.hwp", Data: examHWP()})
	assert.ErrorIs(t, res.Err, apperrors.ErrAlreadyProcessed)
	assert.Equal(t, apperrors.StatusSkip, res.Entry.Status)
	assert.Zero(t, writer.calls)
}

func TestProcessSkipsRowsAlreadyInSink(t *testing.T) {
	writer, _ := newSQLiteWriter(t)
	led := newFakeLedger()
	p := New(Options{}, Deps{Writer: writer, SinkDriver: "sqlite"})
	in := Input{MetaID: 5, FileID: 6, FileName: "a.hwp", Data: examHWP()}

	require.NoError(t, p.Process(context.Background(), in).Err)

	// A later run with the ledger enabled finds the rows and backfills it.
	p = New(Options{}, Deps{Writer: writer, SinkDriver: "sqlite", Ledger: led})
	res := p.Process(context.Background(), in)
	assert.ErrorIs(t, res.Err, apperrors.ErrAlreadyProcessed)
	assert.Equal(t, apperrors.StatusSkip, res.Entry.Status)
	assert.True(t, led.done[store.FileRef{MetaID: 5, FileID: 6}])
}

func TestProcessImportCheckFailureIsAnError(t *testing.T) {
	writer := &fakeWriter{importErr: errors.New("connection reset")}
	p := New(Options{}, Deps{Writer: writer})

	res := p.Process(context.Background(), Input{MetaID: 1, FileID: 2, FileName: "a.hwp", Data: examHWP()})
	assert.Equal(t, apperrors.StatusError, res.Entry.Status)
	assert.ErrorContains(t, res.Err, "checking import state")
	assert.Zero(t, writer.calls)
}

func TestProcessLedgerOutageDoesNotBlock(t *testing.T) {
	led := newFakeLedger()
	led.err = errors.New("connection refused")
	p := New(Options{}, Deps{Ledger: led})

	res := p.Process(context.Background(), Input{MetaID: 1, FileID: 2, FileName: "a.hwp", Data: examHWP()})
	assert.NoError(t, res.Err)
}

func TestProcessDryRunSkipsSinkAndLedger(t *testing.T) {
	writer := &fakeWriter{}
	led := newFakeLedger()
	out := t.TempDir()
	p := New(Options{DryRun: true, OutputDir: out, WriteAnalysis: true, WriteText: true}, Deps{Writer: writer, Ledger: led})

	res := p.Process(context.Background(), Input{MetaID: 3, FileID: 4, FileName: "a.hwp", Data: examHWP()})
	require.NoError(t, res.Err)
	assert.Zero(t, writer.calls)
	assert.Empty(t, led.done)
	assert.FileExists(t, filepath.Join(out, "meta_3_file_4.json"))
	text, err := os.ReadFile(filepath.Join(out, "meta_3_file_4.txt"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(examParagraphs, "\n"), string(text))
}

func TestProcessSinkFailureIsAnError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("deadlock detected")}
	led := newFakeLedger()
	out := t.TempDir()
	m := metrics.NewUnregistered()
	p := New(Options{OutputDir: out, WriteAnalysis: true}, Deps{Writer: writer, SinkDriver: "postgres", Ledger: led, Metrics: m})

	res := p.Process(context.Background(), Input{MetaID: 1, FileID: 2, FileName: "a.hwp", Data: examHWP()})
	require.Error(t, res.Err)
	assert.Equal(t, apperrors.StatusError, res.Entry.Status)
	assert.Contains(t, res.Entry.Reason, "deadlock detected")
	assert.NoFileExists(t, filepath.Join(out, "meta_1_file_2.json"))
	assert.Empty(t, led.done)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkWritesTotal.WithLabelValues("postgres", "rolled_back")))
}

func TestProcessIsDeterministic(t *testing.T) {
	in := Input{MetaID: 5, FileID: 6, FileName: "[독서] a.hwp", Data: examHWP()}
	first := New(Options{}, Deps{}).Process(context.Background(), in)
	second := New(Options{}, Deps{}).Process(context.Background(), in)
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)

	a, err := MarshalAnalysis(first.Analysis)
	require.NoError(t, err)
	b, err := MarshalAnalysis(second.Analysis)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunRecordsEveryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta_2_file_3.hwp")
	require.NoError(t, os.WriteFile(path, examHWP(), 0o644))

	tracker := &fakeTracker{}
	p := New(Options{Workers: 3}, Deps{Events: tracker})
	inputs := []Input{
		{MetaID: 2, FileID: 5, FileName: "copy.hwp", Data: examHWP()},
		{MetaID: 2, FileID: 4, FileName: "same.hwp", Data: examHWP()},
		{MetaID: 2, FileID: 3, FileName: "meta_2_file_3.hwp", Path: path},
		{MetaID: 1, FileID: 1, FileName: "empty.hwp", Data: []byte{}},
		{MetaID: 1, FileID: 2, FileName: "missing.hwp", Path: filepath.Join(dir, "missing.hwp")},
	}

	summary, err := p.Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 5, Success: 3, Skip: 1, Error: 1}, summary)

	entries := p.Manifest().Entries()
	require.Len(t, entries, 5)
	var order []int64
	for _, e := range entries {
		order = append(order, e.FileID)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, order)
	assert.Len(t, tracker.events, 5)

	manifestPath := filepath.Join(dir, "out", "manifest.json")
	require.NoError(t, p.Manifest().WriteFile(manifestPath))
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	var decoded []Entry
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 5)
	assert.Equal(t, apperrors.StatusSkip, decoded[0].Status)
	assert.Equal(t, "no content", decoded[0].Reason)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(Options{}, Deps{})
	_, err := p.Run(ctx, []Input{{MetaID: 1, FileID: 1, FileName: "a.hwp", Data: examHWP()}})
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingExtractor holds every call until release is closed and records the
// context state it saw afterwards.
type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	seen    chan error
}

func (blockingExtractor) Format() extractor.Format { return "blk" }
func (blockingExtractor) Extensions() []string     { return []string{".blk"} }
func (blockingExtractor) Sniff([]byte) bool        { return false }

func (b blockingExtractor) Extract(ctx context.Context, _ []byte) (extractor.Result, error) {
	b.started <- struct{}{}
	<-b.release
	b.seen <- ctx.Err()
	return extractor.Result{Text: "본문"}, ctx.Err()
}

func TestExtractSurvivesFirstCallerCancel(t *testing.T) {
	blk := blockingExtractor{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
		seen:    make(chan error, 4),
	}
	reg := extractor.NewRegistry(nil)
	reg.Register(blk)
	p := New(Options{}, Deps{Registry: reg})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.extract(ctx, "a.blk", []byte("same"))
		first <- err
	}()
	<-blk.started
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(blk.release)
	assert.NoError(t, <-blk.seen)

	res, err := p.extract(context.Background(), "a.blk", []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, "본문", res.Text)
	assert.Equal(t, extractor.Format("blk"), res.Format)
}

func TestCheckQuality(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantLen  int
		sentinel error
	}{
		{"blank", "  \n ", 0, apperrors.ErrEmptyContent},
		{"short", "  짧은 글  ", 4, apperrors.ErrTooShort},
		{"fine", strings.Repeat("가", 60), 60, nil},
		{"mostly private use", strings.Repeat("\uE000", 50) + strings.Repeat("가", 5), 55, apperrors.ErrGarbled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := checkQuality(tt.text, 50, 0.85)
			assert.Equal(t, tt.wantLen, n)
			if tt.sentinel == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"meta_3_file_4.hwp", "b.pdf", "notes.txt", filepath.Join("sub", "a.HWPX")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	inputs, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	assert.Equal(t, Input{MetaID: 0, FileID: 1, FileName: "b.pdf", Path: filepath.Join(dir, "b.pdf")}, inputs[0])
	assert.Equal(t, int64(3), inputs[1].MetaID)
	assert.Equal(t, int64(4), inputs[1].FileID)
	assert.Equal(t, "a.HWPX", inputs[2].FileName)
	assert.Equal(t, int64(3), inputs[2].FileID)

	_, err = Discover(t.TempDir())
	assert.ErrorIs(t, err, errNoInputs)
}

func TestHandleMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exam.hwp")
	require.NoError(t, os.WriteFile(path, examHWP(), 0o644))
	p := New(Options{}, Deps{})
	handle := HandleMessage(p)

	job, err := json.Marshal(Job{MetaID: 8, FileID: 1, FileName: "exam.hwp", Path: path, Category: exam.CategoryLiterature})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("8_1"), job))
	require.NoError(t, handle(context.Background(), nil, []byte("{not json")))
	require.NoError(t, handle(context.Background(), nil, []byte(`{"metaId":1}`)))

	entries := p.Manifest().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, apperrors.StatusSuccess, entries[0].Status)
	assert.Equal(t, int64(8), entries[0].MetaID)
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name   string
		job    Job
		fields []string
	}{
		{"valid", Job{MetaID: 1, FileID: 2, Path: "/data/a.hwp", Category: exam.CategoryGrammar}, nil},
		{"missing path and file id", Job{MetaID: 1}, []string{"fileId", "path"}},
		{"bad category", Job{FileID: 1, Path: "a.hwp", Category: "수학"}, []string{"category"}},
		{"long name", Job{FileID: 1, Path: "a.hwp", FileName: strings.Repeat("a", 256)}, []string{"fileName"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			var got []string
			for f := range verr.Fields {
				got = append(got, f)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
	err := Job{}.Validate()
	assert.Equal(t, "fileId:fileId must be positive; path:path is required", err.Error())
}
