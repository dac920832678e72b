package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, status int) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	received := map[string]interface{}{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-test",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	return srv, &received
}

func TestClassifierPredict(t *testing.T) {
	srv, received := chatServer(t, `{"label":"scam","confidence":0.91,"explanation":"urgent prize"}`, http.StatusOK)

	c := NewClassifier(NewClient("test-key", srv.URL+"/v1"), "gpt-test", 100, 0.1, 0.9, 20, nil, nil)
	require.True(t, c.Available())

	label, confidence, err := c.Predict(context.Background(), "You won a prize! Claim it now before it expires")
	require.NoError(t, err)
	assert.Equal(t, "scam", label)
	assert.InDelta(t, 0.91, confidence, 1e-9)

	assert.Equal(t, "gpt-test", (*received)["model"])
	messages, ok := (*received)["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})["content"].(string)
	assert.Contains(t, user, "message truncated")
	assert.NotContains(t, user, "expires")
}

func TestClassifierPredictErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv, _ := chatServer(t, "", http.StatusInternalServerError)
		c := NewClassifier(NewClient("test-key", srv.URL+"/v1"), "gpt-test", 100, 0, 1, 0, nil, nil)
		_, _, err := c.Predict(context.Background(), "hello")
		assert.Error(t, err)
	})

	t.Run("unparseable verdict", func(t *testing.T) {
		srv, _ := chatServer(t, "I cannot decide", http.StatusOK)
		c := NewClassifier(NewClient("test-key", srv.URL+"/v1"), "gpt-test", 100, 0, 1, 0, nil, nil)
		_, _, err := c.Predict(context.Background(), "hello")
		assert.Error(t, err)
	})
}

func TestClassifierWithoutClient(t *testing.T) {
	c := NewClassifier(nil, "gpt-test", 100, 0, 1, 0, nil, nil)
	assert.False(t, c.Available())
}
