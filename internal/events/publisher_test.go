package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestPublisher_Subject(t *testing.T) {
	p := NewPublisher(nil, "", nil)
	assert.Equal(t, "helpdesk.runs.run-1.subtask.finished", p.Subject("run-1", agent.EventSubtaskFinished))

	p = NewPublisher(nil, "acme.desk", nil)
	assert.Equal(t, "acme.desk.run-1.run.started", p.Subject("run-1", agent.EventRunStarted))
}

func TestPublisher_Progress(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("helpdesk.runs.run-42.>")
	require.NoError(t, err)

	p := NewPublisher(nc, "", nil)
	progress := p.Progress()
	progress(agent.Event{Kind: agent.EventRunStarted, RunID: "run-42", Question: "What is E100?"})
	progress(agent.Event{Kind: agent.EventSubtaskFinished, RunID: "run-42", SubtaskIndex: 1, Completed: true})
	progress(agent.Event{Kind: agent.EventRunStarted, RunID: "other"})
	require.NoError(t, p.Close())

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "helpdesk.runs.run-42.run.started", msg.Subject)
	var started agent.Event
	require.NoError(t, json.Unmarshal(msg.Data, &started))
	assert.Equal(t, "What is E100?", started.Question)

	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "helpdesk.runs.run-42.subtask.finished", msg.Subject)
	var finished agent.Event
	require.NoError(t, json.Unmarshal(msg.Data, &finished))
	assert.Equal(t, 1, finished.SubtaskIndex)
	assert.True(t, finished.Completed)

	_, err = sub.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout)
}

func TestPublisher_FailuresAreLogged(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close()

	logger := logging.NewTestLogger()
	p := NewPublisher(nc, "", logger.Logger)

	assert.NotPanics(t, func() {
		p.Progress()(agent.Event{Kind: agent.EventRunFailed, RunID: "r"})
	})
	logger.AssertLogged(t, zapcore.WarnLevel, "failed to publish run event")
}

func TestConnect(t *testing.T) {
	server := startTestNATSServer(t)

	p, err := Connect(config.NATSConfig{Enabled: true, URL: server.ClientURL()}, nil)
	require.NoError(t, err)
	assert.True(t, p.owned)
	require.NoError(t, p.Publish(agent.Event{Kind: agent.EventRunStarted, RunID: "r"}))
	require.NoError(t, p.Close())

	_, err = Connect(config.NATSConfig{Enabled: true}, nil)
	assert.Error(t, err)
}
