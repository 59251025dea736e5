package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansInheritTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "file", "abc123")
	_, extract := StartChildSpan(ctx, "extract")
	extract.End()
	_, segment := StartChildSpan(ctx, "segment")
	segment.SetAttr("questions", 12)
	segment.End()
	root.End()

	require.Len(t, root.Children, 2)
	assert.Equal(t, "abc123", extract.TraceID)
	assert.Equal(t, 12, segment.Attrs["questions"])
	durations := root.StageDurations()
	assert.Contains(t, durations, "extract")
	assert.Contains(t, durations, "segment")
}

func TestStartChildSpanWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
}

func TestStageRecordsError(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "file", "meta_1_file_2")
	boom := errors.New("sink unavailable")

	err := Stage(ctx, "persist", func(ctx context.Context) error {
		assert.Equal(t, "persist", SpanFromContext(ctx).Name)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, Stage(ctx, "persist", func(context.Context) error { return nil }))

	require.Len(t, root.Children, 2)
	assert.Equal(t, "sink unavailable", root.Children[0].Err)
	assert.Empty(t, root.Children[1].Err)
	assert.Len(t, root.StageDurations(), 1)
}

func TestEndIsIdempotent(t *testing.T) {
	_, span := StartSpan(context.Background(), "file", "x")
	span.End()
	first := span.Duration
	time.Sleep(2 * time.Millisecond)
	span.End()
	assert.Equal(t, first, span.Duration)
}
