package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-insight/internal/llm"
)

type fakeLister struct {
	lastCfg llm.Config
	list    []llm.ModelInfo
	err     error
}

func (f *fakeLister) Models(ctx context.Context, cfg llm.Config) ([]llm.ModelInfo, error) {
	f.lastCfg = cfg
	return f.list, f.err
}

func TestListModels_ReturnsProviderModels(t *testing.T) {
	lister := &fakeLister{
		list: []llm.ModelInfo{
			{Label: "gpt-3.5-turbo", Value: "gpt-3.5-turbo"},
			{Label: "gpt-4", Value: "gpt-4"},
		},
	}
	h := NewModelHandler(lister, zap.NewNop())

	body := `{"provider":"openai","api_key":"k"}`
	req := httptest.NewRequest(http.MethodPost, "/insight/api/v1/models", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ListModels(w, req)

	code, _, result := decodeEnvelope(t, w.Body)
	require.Equal(t, ResultSuccess, code)

	var list []llm.ModelInfo
	require.NoError(t, json.Unmarshal(result, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "gpt-4", list[1].Value)

	assert.Equal(t, "openai", lister.lastCfg.Provider)
	assert.Equal(t, "k", lister.lastCfg.APIKey)
}

func TestListModels_ProviderRequired(t *testing.T) {
	h := NewModelHandler(&fakeLister{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/insight/api/v1/models", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ListModels(w, req)

	code, message, _ := decodeEnvelope(t, w.Body)
	assert.Equal(t, ResultError, code)
	assert.Contains(t, message, "provider is required")
}

func TestListModels_ProviderErrorSurfaced(t *testing.T) {
	lister := &fakeLister{
		err: &llm.ProviderError{Provider: "openai", StatusCode: 401, Message: "Incorrect API key provided"},
	}
	h := NewModelHandler(lister, zap.NewNop())

	body := `{"provider":"openai","api_key":"bad"}`
	req := httptest.NewRequest(http.MethodPost, "/insight/api/v1/models", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ListModels(w, req)

	code, message, _ := decodeEnvelope(t, w.Body)
	assert.Equal(t, ResultError, code)
	assert.Contains(t, message, "Incorrect API key provided")
}
