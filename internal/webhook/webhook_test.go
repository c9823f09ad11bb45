// Copyright 2026 fanjia1024

package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "rag-platform/pkg/errors"
)

type fakeQueue struct {
	enqueued map[string][]byte
	calls    int
}

func newFakeQueue() *fakeQueue { return &fakeQueue{enqueued: map[string][]byte{}} }

func (q *fakeQueue) Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error {
	q.calls++
	if _, exists := q.enqueued[jobID]; exists {
		return nil
	}
	q.enqueued[jobID] = payload
	return nil
}

const completedBody = `{"event":"task.completed","data":{"task":{"tool":"upscaleimage","server":"api8g.example.com","task":"t1","custom_int":"185150","custom_string":"fp1","status":"ok"}}}`
const failedBody = `{"event":"task.failed","data":{"task":{"tool":"compress","server":"api1.example.com","task":"t2","custom_int":"185150","custom_string":"fp2","status":"error","status_message":"bad input"}}}`

func TestHandle_SharedSecretAuthenticates(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{SharedSecret: "s3cr3t"}, q)

	resp, err := in.Handle(context.Background(), []byte(completedBody), RequestMeta{APIKeyHeader: "s3cr3t"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.True(t, resp.IsWaiting)
	assert.Equal(t, "fp1", resp.JID)
	assert.Contains(t, q.enqueued, "fp1")
}

func TestHandle_OriginAllowlistAuthenticates(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{AllowedOrigins: []string{".example.com"}}, q)

	resp, err := in.Handle(context.Background(), []byte(completedBody), RequestMeta{Origin: "https://hooks.example.com"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestHandle_RejectsUnauthenticated(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{SharedSecret: "s3cr3t", AllowedOrigins: []string{".example.com"}}, q)

	_, err := in.Handle(context.Background(), []byte(completedBody), RequestMeta{Origin: "https://evil.test"})
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorized)
	assert.Equal(t, 0, q.calls)
}

func TestHandle_RejectsMalformedBody(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{SharedSecret: "s3cr3t"}, q)

	_, err := in.Handle(context.Background(), []byte("not json"), RequestMeta{APIKeyHeader: "s3cr3t"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidWebhook)
}

func TestHandle_RejectsUnknownEvent(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{SharedSecret: "s3cr3t"}, q)

	_, err := in.Handle(context.Background(), []byte(`{"event":"task.bogus","data":{"task":{"custom_string":"fp1"}}}`), RequestMeta{APIKeyHeader: "s3cr3t"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidWebhook)
}

func TestHandle_TaskFailedEnqueuesUnderSameEventName(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{SharedSecret: "s3cr3t"}, q)

	resp, err := in.Handle(context.Background(), []byte(failedBody), RequestMeta{APIKeyHeader: "s3cr3t"})
	require.NoError(t, err)
	assert.False(t, resp.IsWaiting)
	assert.Contains(t, q.enqueued, "fp2")
	assert.Contains(t, string(q.enqueued["fp2"]), `"event":"task.failed"`)
}

func TestHandle_DuplicateWebhookIsIdempotent(t *testing.T) {
	q := newFakeQueue()
	in := New(AuthConfig{SharedSecret: "s3cr3t"}, q)

	_, err := in.Handle(context.Background(), []byte(completedBody), RequestMeta{APIKeyHeader: "s3cr3t"})
	require.NoError(t, err)
	_, err = in.Handle(context.Background(), []byte(completedBody), RequestMeta{APIKeyHeader: "s3cr3t"})
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls, "enqueue is called twice but the underlying queue key is the same fingerprint")
	assert.Len(t, q.enqueued, 1)
}
