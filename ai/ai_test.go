package ai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"torchverso/ai"

	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "Missing key",
			key:  "",
			want: ai.MissingKeyReply,
		},
		{
			name: "Reply text",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "k", r.URL.Query().Get("key"))
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				raw, _ := json.Marshal(body)
				require.True(t, strings.Contains(string(raw), "User: hello"))
				w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Beep "},{"text":"boop"}]}}]}`))
			},
			want: "Beep boop",
		},
		{
			name: "Backend error",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			want: ai.OfflineReply,
		},
		{
			name: "Empty candidates",
			key:  "k",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"candidates":[]}`))
			},
			want: ai.OfflineReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := "http://127.0.0.1:1/unused"
			if tt.handler != nil {
				ts := httptest.NewServer(tt.handler)
				defer ts.Close()
				endpoint = ts.URL + "/v1beta/models/test:generateContent"
			}
			c := ai.NewClient(tt.key, endpoint, nil)
			got := c.Generate(context.Background(), "You are a robot.", "hello")
			require.Equal(t, tt.want, got)
		})
	}
}
