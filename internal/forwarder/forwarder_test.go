package forwarder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-insight/internal/logger"
)

func newTestForwarder(t *testing.T) *Forwarder {
	log, err := logger.NewLogger("error", "console", "forwarder-test")
	require.NoError(t, err)
	return NewForwarder(5*time.Second, log)
}

func TestForward_Success(t *testing.T) {
	var gotBody []byte
	var gotMethod string
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `[{"action":"set","value":22}]`, server.URL, "POST", "")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `[{"action":"set","value":22}]`, string(gotBody))
}

func TestForward_PutMethod(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `[1]`, server.URL, "put", "")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestForward_RejectsUnsupportedMethod(t *testing.T) {
	// 不支持的方法必须在发起请求前失败
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `[1]`, server.URL, "GET", "")
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
	assert.False(t, called, "server must not be contacted for unsupported methods")
}

func TestForward_Non2xxStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `[1]`, server.URL, "POST", "")
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadGateway, terr.StatusCode)
	assert.Contains(t, terr.Body, "upstream down")
}

func TestForward_CustomHeaders(t *testing.T) {
	var gotAuth, gotTenant string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTenant = r.Header.Get("X-Tenant")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	spec := "Authorization: Bearer tok\nX-Tenant: t1"
	err := fwd.Forward(context.Background(), `[1]`, server.URL, "POST", spec)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "t1", gotTenant)
}

func TestForward_ContentTypeNotOverridden(t *testing.T) {
	// 调用方自带 Content-Type 时不注入默认值
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `[1]`, server.URL, "POST", "content-type: application/vnd.custom+json")
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.custom+json", gotContentType)
}

func TestForward_ExtractionFailure(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), "no json here", server.URL, "POST", "")
	require.ErrorIs(t, err, ErrExtraction)
	assert.False(t, called)
}

func TestForward_ValidationFailure(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `{"not":"an array"}`, server.URL, "POST", "")
	require.ErrorIs(t, err, ErrValidation)
	assert.False(t, called)
}

func TestForward_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	fwd := newTestForwarder(t)
	err := fwd.Forward(context.Background(), `[1]`, url, "POST", "")
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
	assert.NotEmpty(t, terr.Reason)
}
