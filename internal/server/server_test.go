package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawbot/internal/config"
	"pawbot/internal/provider"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "hours.md"),
		[]byte("# Часы работы\n\nМагазины открыты с 9:00 до 21:00 без выходных.\n"), 0644))

	return &config.Config{
		Storage: config.StorageConfig{Driver: DriverSQLite, Path: filepath.Join(dir, "data.db")},
		Model:   config.ModelConfig{Name: "gpt-4o-mini", ContextTokens: 16000, MaxOutputTokens: 500},
		Retrieval: config.RetrievalConfig{
			Enabled: true,
			TopK:    3,
		},
		Knowledge: config.KnowledgeConfig{DocsDir: docs, ResyncSchedule: "@every 6h"},
		Assistant: config.AssistantConfig{Name: "Душнилла", SystemPrompt: "ты помощник"},
		Gateway:   config.GatewayConfig{Host: "127.0.0.1", Port: 0},
	}
}

func echoModel() provider.Provider {
	return provider.ProviderFunc(func(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{
			Content: "мы открыты с 9 до 21",
			Usage:   &provider.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
		}, nil
	})
}

func TestBuild_SQLiteDriver(t *testing.T) {
	cfg := testConfig(t)
	comps, err := Build(cfg, echoModel())
	require.NoError(t, err)
	defer comps.Close()

	assert.Equal(t, cfg.Knowledge.DocsDir, comps.DocsDir)
	assert.NotNil(t, comps.Assistant)

	sess, err := comps.Store.Load(context.Background(), "42", false)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Epoch)
}

func TestBuild_FileDriver(t *testing.T) {
	cfg := testConfig(t)
	sessions := filepath.Join(t.TempDir(), "sessions")
	cfg.Storage.Driver = DriverFile
	cfg.Storage.Dir = sessions

	comps, err := Build(cfg, echoModel())
	require.NoError(t, err)
	defer comps.Close()

	_, err = comps.Store.Load(context.Background(), "42", false)
	require.NoError(t, err)

	entries, err := os.ReadDir(sessions)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestBuild_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "redis"

	_, err := Build(cfg, echoModel())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestComponents_IngestAndAnswer(t *testing.T) {
	cfg := testConfig(t)
	comps, err := Build(cfg, echoModel())
	require.NoError(t, err)
	defer comps.Close()

	stats, err := comps.Ingester.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Positive(t, comps.Index.Size())
}

func TestNewServer_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Knowledge.ResyncSchedule = "every other day"

	srv, err := NewServer(ServerConfig{Config: cfg, Logger: zerolog.Nop(), Provider: echoModel()})
	require.NoError(t, err)
	defer srv.Components().Close()

	err = srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "knowledge.resync_schedule")
	assert.False(t, srv.IsRunning())
}

func TestServer_StartStop(t *testing.T) {
	cfg := testConfig(t)
	var states []bool
	srv, err := NewServer(ServerConfig{
		Config:        cfg,
		Version:       "test",
		Logger:        zerolog.Nop(),
		Provider:      echoModel(),
		OnStateChange: func(running bool) { states = append(states, running) },
	})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	_, ok := srv.NextResync()
	assert.True(t, ok)

	base := fmt.Sprintf("http://%s", srv.Addr())

	resp, err := http.Get(base + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// the startup sync runs in the background
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/knowledge")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Chunks int `json:"chunks"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && body.Chunks > 0
	}, 5*time.Second, 20*time.Millisecond)

	resp, err = http.Post(base+"/api/v1/conversations/7/messages", "application/json",
		strings.NewReader(`{"text":"когда вы открыты?","user_id":"7"}`))
	require.NoError(t, err)
	var msg struct {
		Reply struct {
			Text string `json:"text"`
		} `json:"reply"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, msg.Reply.Text, "с 9 до 21")

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Stop())
	assert.Equal(t, []bool{true, false}, states)
}
