package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/pkg/tasks"
)

type stubProcessor struct {
	err   error
	calls int
}

func (p *stubProcessor) Process(context.Context, tasks.DocumentIngestTask) error {
	p.calls++
	return p.err
}

type memCounter struct {
	counts map[string]int64
	err    error
}

func (c *memCounter) Incr(_ context.Context, key string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

func taskBytes(t *testing.T) []byte {
	b, err := json.Marshal(tasks.DocumentIngestTask{DocumentID: "doc-1", UserID: 1, FileName: "cv.pdf"})
	require.NoError(t, err)
	return b
}

func TestHandleMessage_SuccessCommitsAndResets(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{attemptsKey("doc-1"): 2}}
	commit := handleMessage(context.Background(), taskBytes(t), &stubProcessor{}, counter)
	assert.True(t, commit)
	assert.NotContains(t, counter.counts, attemptsKey("doc-1"))
}

func TestHandleMessage_RetriesUntilLimit(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}}
	proc := &stubProcessor{err: errors.New("boom")}

	assert.False(t, handleMessage(context.Background(), taskBytes(t), proc, counter))
	assert.False(t, handleMessage(context.Background(), taskBytes(t), proc, counter))
	assert.True(t, handleMessage(context.Background(), taskBytes(t), proc, counter))
	assert.Equal(t, 3, proc.calls)
}

func TestHandleMessage_CounterFailureDoesNotCommit(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}, err: errors.New("redis down")}
	assert.False(t, handleMessage(context.Background(), taskBytes(t), &stubProcessor{err: errors.New("boom")}, counter))
}

func TestHandleMessage_MalformedCommits(t *testing.T) {
	proc := &stubProcessor{}
	assert.True(t, handleMessage(context.Background(), []byte("{not json"), proc, &memCounter{counts: map[string]int64{}}))
	assert.Equal(t, 0, proc.calls)
}

func TestProduceWithoutProducer(t *testing.T) {
	assert.ErrorIs(t, ProduceIngestTask(context.Background(), tasks.DocumentIngestTask{}), ErrProducerUnavailable)
}
