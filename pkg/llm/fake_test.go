package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePlaysScriptInOrder(t *testing.T) {
	f := NewFake(
		FakeStep{Text: "first"},
		FakeStep{Err: errors.New("boom")},
		FakeStep{Text: "third"},
	)

	resp, err := f.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = f.Complete(context.Background(), Request{})
	assert.EqualError(t, err, "boom")

	resp, err = f.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "third", resp.Text)

	_, err = f.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
}

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake(FakeStep{Text: "ok"})
	_, err := f.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Messages[0].Content)
}

func TestFakeHonoursContextCancellation(t *testing.T) {
	f := NewFake(FakeStep{Text: "never"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
