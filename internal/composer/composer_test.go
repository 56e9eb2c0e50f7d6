package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afshinator/BatchSMS/internal/model"
)

func newProviderStub(t *testing.T, result string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/compose", r.URL.Path)

		var req ComposeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Phone)
		assert.NotEmpty(t, req.Text)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ComposeResponse{Result: result, ComposedAt: time.Now()})
	}))
}

func TestClient_ComposeSent(t *testing.T) {
	server := newProviderStub(t, resultSent, http.StatusOK)
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	outcome, err := client.Compose(context.Background(), "555-0001", "Hi Ann")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSent, outcome)
}

func TestClient_ComposeDismissed(t *testing.T) {
	server := newProviderStub(t, resultDismissed, http.StatusOK)
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	outcome, err := client.Compose(context.Background(), "555-0001", "Hi Ann")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDismissed, outcome)
}

func TestClient_ComposeProviderUnavailable(t *testing.T) {
	server := newProviderStub(t, "", http.StatusServiceUnavailable)
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	_, err := client.Compose(context.Background(), "555-0001", "Hi Ann")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_ComposeUnknownResult(t *testing.T) {
	server := newProviderStub(t, "maybe", http.StatusOK)
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	_, err := client.Compose(context.Background(), "555-0001", "Hi Ann")
	assert.Error(t, err)
}

func TestClient_ComposeConnectionRefused(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := client.Compose(context.Background(), "555-0001", "Hi Ann")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Ping(t *testing.T) {
	server := newProviderStub(t, resultSent, http.StatusOK)
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 2 * time.Second})
	assert.NoError(t, client.Ping(context.Background()))
}

func TestTerminal_Compose(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  model.ComposerOutcome
	}{
		{"confirms with y", "y\n", model.OutcomeSent},
		{"confirms with yes", "YES\n", model.OutcomeSent},
		{"dismisses with n", "n\n", model.OutcomeDismissed},
		{"dismisses on empty line", "\n", model.OutcomeDismissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.input), &out)

			outcome, err := term.Compose(context.Background(), "555-0001", "Hi Ann, hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			assert.Contains(t, out.String(), "555-0001")
			assert.Contains(t, out.String(), "Hi Ann, hello")
		})
	}
}

func TestTerminal_ComposeCancelRun(t *testing.T) {
	cancelled := false
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("c\n"), &out, WithCancelRun(func() error {
		cancelled = true
		return nil
	}))

	outcome, err := term.Compose(context.Background(), "555-0001", "Hi Ann")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDismissed, outcome)
	assert.True(t, cancelled)
	assert.Contains(t, out.String(), "c=cancel run")
}

func TestTerminal_ComposeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked, _ := io.Pipe()
	defer blocked.Close()
	term := NewTerminal(blocked, &bytes.Buffer{})
	outcome, err := term.Compose(ctx, "555-0001", "Hi Ann")
	assert.Error(t, err)
	assert.Equal(t, model.OutcomeDismissed, outcome)
}
