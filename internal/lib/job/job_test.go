package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	to, name string
	err      error
}

func (f *fakeMailer) SendWelcomeEmail(_ context.Context, to, firstName string) error {
	f.to, f.name = to, firstName
	return f.err
}

func newTestService(m WelcomeMailer) *JobService {
	log := zerolog.Nop()
	return &JobService{mailer: m, logger: &log}
}

func TestNewWelcomeEmailTask(t *testing.T) {
	task, err := NewWelcomeEmailTask("ada@example.com", "Ada")
	require.NoError(t, err)

	assert.Equal(t, TaskWelcome, task.Type())

	var p WelcomeEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, WelcomeEmailPayload{To: "ada@example.com", FirstName: "Ada"}, p)
}

func TestHandleWelcomeEmailTask(t *testing.T) {
	m := &fakeMailer{}
	j := newTestService(m)

	task, err := NewWelcomeEmailTask("ada@example.com", "Ada")
	require.NoError(t, err)

	require.NoError(t, j.mux().ProcessTask(context.Background(), task))
	assert.Equal(t, "ada@example.com", m.to)
	assert.Equal(t, "Ada", m.name)
}

func TestHandleWelcomeEmailTaskErrors(t *testing.T) {
	m := &fakeMailer{err: errors.New("resend down")}
	j := newTestService(m)

	task, err := NewWelcomeEmailTask("ada@example.com", "Ada")
	require.NoError(t, err)
	err = j.handleWelcomeEmailTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	err = j.handleWelcomeEmailTask(context.Background(), asynq.NewTask(TaskWelcome, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
