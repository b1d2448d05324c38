package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "ragchat", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "chat", "ask", "mcp"} {
		assert.True(t, names[want], "missing %s", want)
	}

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("addr"))
}

func TestAskCommandEndToEnd(t *testing.T) {
	var prompts []string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Messages[0].Content)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": " The sky is blue. "}},
			},
		})
	}))
	defer llm.Close()

	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "sky.txt"), []byte("The sky is blue."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "grass.txt"), []byte("Grass is green."), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Join([]string{
		"log:",
		"  level: error",
		"embedder:",
		"  type: tfidf",
		"retriever:",
		"  k: 3",
		"  score_threshold: 0.1",
		"generator:",
		"  base_url: " + llm.URL + "/v1",
		"  max_retries: 1",
	}, "\n")), 0o644))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "ask", "--sources", docs, "What color is the sky?"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "The sky is blue.", lines[0])
	assert.Contains(t, lines[1], "sky.txt")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Context: The sky is blue.")
}

func TestAskCommandRejectsEmptyFolder(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\nembedder:\n  type: tfidf\n"), 0o644))

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "ask", dir, "anything"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_documents")
}
