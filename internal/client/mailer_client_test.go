package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailerClientSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewMailerClient(MailerConfig{BaseURL: srv.URL + "/"})
	err := c.Send(context.Background(), "release-order", map[string]any{"email": "vendor@example.com", "ronumber": "DIPR/ARN/10"})

	require.NoError(t, err)
	assert.Equal(t, "/email/release-order", gotPath)
	assert.Equal(t, "vendor@example.com", gotBody["email"])
	assert.Equal(t, "DIPR/ARN/10", gotBody["ronumber"])
}

func TestMailerClientNon200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("queued"))
	}))
	defer srv.Close()

	err := NewMailerClient(MailerConfig{BaseURL: srv.URL}).Send(context.Background(), "informDept", map[string]any{})

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusCreated, de.StatusCode)
	assert.Equal(t, "informDept", de.Template)
	assert.Equal(t, "queued", de.Body)
}

func TestMailerClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewMailerClient(MailerConfig{BaseURL: url}).Send(context.Background(), "accepting", nil)
	require.Error(t, err)
}
