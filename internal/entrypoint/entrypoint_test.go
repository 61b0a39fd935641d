package entrypoint

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/ranya-voice/internal/config"
	"github.com/harun/ranya-voice/pkg/agent"
	"github.com/harun/ranya-voice/pkg/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) Provider() string { return "stub" }

func (stubProvider) Call(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
	return &agent.LLMResponse{Content: "ok"}, nil
}

func useStubProvider(t *testing.T) {
	orig := newProvider
	newProvider = func(config.LLMConfig) (agent.LLMProvider, error) { return stubProvider{}, nil }
	t.Cleanup(func() { newProvider = orig })
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Transports = []string{"gateway"}
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = 0
	cfg.STT.APIKey = "dg-test-key"
	cfg.LLM.APIKey = "sk-test"
	cfg.TTS.APIKey = "sk-test"
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestBuildWiresComponents(t *testing.T) {
	useStubProvider(t)

	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "invoice.md"), []byte("invoice 42"), 0600))

	cfg := testConfig(t)
	cfg.Documents.Enabled = true
	cfg.Documents.Dir = docs
	cfg.Documents.DBPath = filepath.Join(t.TempDir(), "docs.db")
	cfg.Documents.Watch = false

	rt, err := Build(context.Background(), cfg, "job-1", zerolog.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 1, rt.Transport.Len())
	assert.True(t, rt.Assistant.Attached())
	assert.Equal(t, []string{"get_weather", "search_documents", "send_notification"}, rt.Tools.ListTools())
	assert.Equal(t, "stub", rt.Runner.Provider())
	require.NotNil(t, rt.Documents)

	msgs := rt.Session.Chat().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, agent.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are a helpful assistant with access to tools.", msgs[0].Content)

	out, err := rt.Assistant.SearchDocuments(context.Background(), "invoice")
	require.NoError(t, err)
	assert.Contains(t, out, "invoice.md")
}

func TestBuildWithoutTransportIsDetached(t *testing.T) {
	useStubProvider(t)

	cfg := testConfig(t)
	cfg.Transports = nil

	rt, err := Build(context.Background(), cfg, "job-2", zerolog.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 0, rt.Transport.Len())
	assert.False(t, rt.Assistant.Attached())

	out, err := rt.Assistant.SendNotification(context.Background(), "hello", "user-42")
	require.NoError(t, err)
	assert.Equal(t, "Notification sent: hello", out)
}

func TestBuildErrors(t *testing.T) {
	useStubProvider(t)

	_, err := Build(context.Background(), nil, "job", zerolog.Nop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Transports = []string{"carrier-pigeon"}
	_, err = Build(context.Background(), cfg, "job", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build transport")

	cfg = testConfig(t)
	cfg.STT.Provider = "sphinx"
	_, err = Build(context.Background(), cfg, "job", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build stt")

	cfg = testConfig(t)
	cfg.VAD.Threshold = 0
	_, err = Build(context.Background(), cfg, "job", zerolog.Nop())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.TTS.Provider = "espeak"
	_, err = Build(context.Background(), cfg, "job", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build tts")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestBuildFailureReleasesStartedTransports(t *testing.T) {
	useStubProvider(t)

	cfg := testConfig(t)
	cfg.Gateway.Port = freePort(t)
	cfg.TTS.Provider = "espeak"

	rt, err := Build(context.Background(), cfg, "job", zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, rt)

	// The gateway started before the failure must have given its port back.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Gateway.Port))
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}

func TestBuildFailureAfterTransportErrorDoesNotPanic(t *testing.T) {
	useStubProvider(t)

	cfg := testConfig(t)
	cfg.Transports = []string{"gateway", "carrier-pigeon"}

	assert.NotPanics(t, func() {
		rt, err := Build(context.Background(), cfg, "job", zerolog.Nop())
		assert.Error(t, err)
		assert.Nil(t, rt)
	})
}

func TestRuntimeCloseNil(t *testing.T) {
	var rt *Runtime
	assert.NoError(t, rt.Close())
}

func TestRunStopsOnCancel(t *testing.T) {
	useStubProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, &worker.JobContext{ID: "job-3", Config: testConfig(t), Logger: zerolog.Nop()})
	assert.NoError(t, err)
}

func TestSystemPromptOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, config.DefaultSystemPrompt, systemPrompt(cfg))

	cfg.LLM.SystemPrompt = "Be brief."
	assert.Equal(t, "Be brief.", systemPrompt(cfg))
}
