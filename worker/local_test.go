package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcoord/message"
)

func TestLocalWorker_DefaultHandlerAcceptsTasks(t *testing.T) {
	w := NewLocal("w1", "Worker One", []string{"go"}, nil, nil)

	msg := message.New("coordinator", "w1", message.NewTask{TaskID: "t1"})
	res, err := w.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "t1", res.TaskID)
	assert.Equal(t, OutcomeAccepted, res.Outcome)

	res, err = w.ProcessMessage(context.Background(), message.New("x", "w1", message.Direct{Subject: "hi"}))
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestLocalWorker_SkillsAreCopied(t *testing.T) {
	skills := []string{"go"}
	w := NewLocal("w1", "", skills, nil, nil)
	skills[0] = "rust"

	got := w.Skills()
	assert.Equal(t, []string{"go"}, got)
	got[0] = "python"
	assert.Equal(t, []string{"go"}, w.Skills())
}

func TestLocalWorker_StatusTracksPending(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	w := NewLocal("w1", "", nil, func(ctx context.Context, msg message.Message) (Result, error) {
		close(entered)
		<-release
		return Result{}, nil
	}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.ProcessMessage(context.Background(), message.New("a", "w1", message.Direct{}))
	}()
	<-entered

	st, err := w.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, st.State)
	assert.Equal(t, 1, st.PendingItems)

	close(release)
	<-done

	w.SetHealthy(false)
	st, err = w.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, 0, st.PendingItems)
}

func TestLocalWorker_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	w := NewLocal("w1", "", nil, func(ctx context.Context, msg message.Message) (Result, error) {
		return Result{}, boom
	}, nil)

	_, err := w.ProcessMessage(context.Background(), message.New("a", "w1", message.Direct{}))
	assert.ErrorIs(t, err, boom)
}

func TestOutcome_Terminal(t *testing.T) {
	assert.True(t, OutcomeCompleted.Terminal())
	assert.True(t, OutcomeFailed.Terminal())
	assert.False(t, OutcomeAccepted.Terminal())
	assert.False(t, OutcomeNone.Terminal())
}
