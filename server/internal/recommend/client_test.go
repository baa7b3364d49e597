package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
)

const okContent = `{
  "fatigue_analysis": {
    "current_metrics": [{"label": "HRV", "value": 65, "baseline": 74, "delta": -12.2, "status": "below"}],
    "key_findings": ["HRV below baseline"]
  },
  "risk_factors": [{"id": "r1", "title": "Cardiac strain", "description": "Elevated HR", "severity": "medium", "icon": "heart"}],
  "recommendations": ["Rest 12h", "Hydrate"],
  "flight_status": "MONITOR",
  "confidence_score": 0.82
}`

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body chatRequest)) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("PILOTWATCH_TEST_REC_KEY", "sk-test")
	c := NewChatClient(config.RecommendationsConfig{
		BaseURL:   srv.URL + "/v1/",
		APIKeyEnv: "PILOTWATCH_TEST_REC_KEY",
		Model:     "test-model",
		Timeout:   5 * time.Second,
	})
	return c
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func TestChatClient_Success(t *testing.T) {
	c := chatServer(t, func(w http.ResponseWriter, body chatRequest) {
		assert.Equal(t, "test-model", body.Model)
		assert.Equal(t, "json_object", body.ResponseFormat.Type)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Contains(t, body.Messages[1].Content, "- Age: 32")
		}
		reply(w, okContent)
	})

	rec, err := c.Recommend(context.Background(), Request{PilotID: "P001", Age: 32, Gender: types.GenderMale})
	require.NoError(t, err)
	assert.Equal(t, types.FlightMonitor, rec.FlightStatus)
	assert.Equal(t, []string{"Rest 12h", "Hydrate"}, rec.Recommendations)
	assert.InDelta(t, 0.82, rec.ConfidenceScore, 1e-9)
	require.Len(t, rec.FatigueAnalysis.CurrentMetrics, 1)
	assert.Equal(t, "below", rec.FatigueAnalysis.CurrentMetrics[0].Status)
}

func TestChatClient_Failures(t *testing.T) {
	cases := []struct {
		name      string
		handler   func(w http.ResponseWriter)
		status    int
		malformed bool
		retryable bool
	}{
		{
			name:      "server error",
			handler:   func(w http.ResponseWriter) { http.Error(w, "boom", http.StatusInternalServerError) },
			status:    500,
			retryable: true,
		},
		{
			name:      "rate limited",
			handler:   func(w http.ResponseWriter) { http.Error(w, "slow down", http.StatusTooManyRequests) },
			status:    429,
			retryable: true,
		},
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter) { http.Error(w, "bad key", http.StatusUnauthorized) },
			status:  401,
		},
		{
			name:      "no choices",
			handler:   func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"choices":[]}`)) },
			malformed: true,
		},
		{
			name:      "content not json",
			handler:   func(w http.ResponseWriter) { reply(w, "I cannot help with that") },
			malformed: true,
		},
		{
			name:      "flight status missing",
			handler:   func(w http.ResponseWriter) { reply(w, `{"recommendations":["Rest"]}`) },
			malformed: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := chatServer(t, func(w http.ResponseWriter, _ chatRequest) { tc.handler(w) })
			_, err := c.Recommend(context.Background(), Request{PilotID: "P001"})
			require.Error(t, err)

			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "want *ProviderError, got %T", err)
			assert.Equal(t, "P001", pe.PilotID)
			assert.Equal(t, tc.status, pe.Status)
			assert.Equal(t, tc.malformed, errors.Is(err, ErrMalformedResponse))
			assert.Equal(t, tc.retryable, pe.retryable())
		})
	}
}
