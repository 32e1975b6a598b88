package openrouter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-resolver/internal/core/ai/openrouter"
	"nutrition-resolver/internal/core/ai/provider"
)

type captured struct {
	mu    sync.Mutex
	auths []string
	body  map[string]interface{}
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		c.mu.Lock()
		c.auths = append(c.auths, r.Header.Get("Authorization"))
		c.body = body
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

const okReply = `{"id":"x","model":"test-model","choices":[{"message":{"role":"assistant","content":"[{\"name\":\"рис\"}]"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`

func TestClient_Generate(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, okReply)
	client := openrouter.NewClient(provider.Config{
		APIKeys: []string{"key-1"},
		Model:   "test-model",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
	defer client.Close()

	resp, err := client.Generate(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserText("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"рис"}]`, resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, []string{"Bearer key-1"}, got.auths)
	assert.Equal(t, "test-model", got.body["model"])
	msgs := got.body["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].(map[string]interface{})["content"])
}

func TestClient_MultimodalMessage(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, okReply)
	client := openrouter.NewClient(provider.Config{APIKeys: []string{"k"}, BaseURL: srv.URL})

	_, err := client.Generate(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserImage("что на фото?", "QUJD")},
	})
	require.NoError(t, err)

	msg := got.body["messages"].([]interface{})[0].(map[string]interface{})
	parts := msg["content"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]interface{})["type"])
	img := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/jpeg;base64,QUJD", img["image_url"].(map[string]interface{})["url"])
}

func TestClient_RotatesKeys(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, okReply)
	client := openrouter.NewClient(provider.Config{APIKeys: []string{"a", "b"}, BaseURL: srv.URL})

	for i := 0; i < 3; i++ {
		_, err := client.Generate(context.Background(), &provider.Request{
			Messages: []provider.Message{provider.UserText("x")},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"Bearer a", "Bearer b", "Bearer a"}, got.auths)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`)
	client := openrouter.NewClient(provider.Config{APIKeys: []string{"k"}, BaseURL: srv.URL})

	_, err := client.Generate(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserText("x")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}

func TestClient_EmptyChoices(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"choices":[]}`)
	client := openrouter.NewClient(provider.Config{APIKeys: []string{"k"}, BaseURL: srv.URL})

	_, err := client.Generate(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserText("x")},
	})
	assert.Error(t, err)
}

func TestClient_NoKey(t *testing.T) {
	client := openrouter.NewClient(provider.Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Generate(context.Background(), &provider.Request{
		Messages: []provider.Message{provider.UserText("x")},
	})
	assert.Error(t, err)
}

func TestClient_Defaults(t *testing.T) {
	client := openrouter.NewClient(provider.Config{Model: "m"})
	assert.Equal(t, "m", client.GetModel())
	assert.Equal(t, 60*time.Second, client.GetTimeout())
}

func TestRoundRobin(t *testing.T) {
	rr := openrouter.NewRoundRobin("a", " ", "b", "a", "c")
	assert.Equal(t, 3, rr.Len())
	var seq []string
	for i := 0; i < 4; i++ {
		seq = append(seq, rr.Next())
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, seq)

	assert.Equal(t, "", openrouter.NewRoundRobin().Next())
}

func TestRoundRobin_Concurrent(t *testing.T) {
	rr := openrouter.NewRoundRobin("a", "b")
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := rr.Next()
			mu.Lock()
			counts[k]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counts["a"])
	assert.Equal(t, 50, counts["b"])
}
