package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs, err := Encode([]Event{
		{Key: "12_3", Type: "file.processed", Value: map[string]int{"questions": 5}},
		{Key: "12_4", Value: "plain"},
	}, now)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, []byte("12_3"), msgs[0].Key)
	assert.JSONEq(t, `{"questions":5}`, string(msgs[0].Value))
	assert.Equal(t, now, msgs[0].Time)
	require.Len(t, msgs[0].Headers, 1)
	assert.Equal(t, HeaderEventType, msgs[0].Headers[0].Key)
	assert.Equal(t, "file.processed", string(msgs[0].Headers[0].Value))

	assert.Empty(t, msgs[1].Headers)
	assert.Equal(t, `"plain"`, string(msgs[1].Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := Encode([]Event{{Key: "k", Type: "x", Value: make(chan int)}}, time.Now())
	assert.Error(t, err)
}

func TestCodec(t *testing.T) {
	tests := []struct {
		name string
		want kafka.Compression
	}{
		{"gzip", kafka.Gzip},
		{"snappy", kafka.Snappy},
		{"lz4", kafka.Lz4},
		{"zstd", kafka.Zstd},
		{"none", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Codec(tt.name))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type job struct {
		Path string `json:"path"`
	}
	got, err := DecodeJSON[job]([]byte(`{"path":"/x.hwp"}`))
	require.NoError(t, err)
	assert.Equal(t, "/x.hwp", got.Path)

	_, err = DecodeJSON[job]([]byte(`{`))
	assert.Error(t, err)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
	fetchErrs int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErrs > 0 {
		r.fetchErrs--
		return kafka.Message{}, errors.New("broker hiccup")
	}
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte("ok")},
			{Offset: 2, Value: []byte("fail")},
			{Offset: 3, Value: []byte("ok")},
		},
		cancel:    cancel,
		fetchErrs: 1,
	}
	var seen []string
	c := NewConsumerFromReader(r, "exam-file-ingest", func(_ context.Context, _ []byte, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "fail" {
			return errors.New("handler failed")
		}
		return nil
	})

	require.NoError(t, c.Start(ctx))
	assert.True(t, r.closed)
	assert.Equal(t, []string{"ok", "fail", "ok"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)
	assert.Equal(t, ConsumerStats{Handled: 2, Failed: 1, Committed: 2}, c.Stats())
}
