package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates an sdkClient pointing at a local test server.
func newTestClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
		),
	}
}

// jsonServer serves one canned JSON body with the given status, and invokes
// check on each request when set.
func jsonServer(t *testing.T, status int, body map[string]any, check func(*http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func apiError(errType, message string) map[string]any {
	return map[string]any{
		"type":  "error",
		"error": map[string]any{"type": errType, "message": message},
	}
}

func batchBody(id, status string, counts map[string]any) map[string]any {
	return map[string]any{
		"id":                id,
		"type":              "message_batch",
		"processing_status": status,
		"results_url":       "",
		"request_counts":    counts,
	}
}

func TestSDKClient_CreateMessage(t *testing.T) {
	ts := jsonServer(t, http.StatusOK, map[string]any{
		"id":   "msg_match_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": `{"base_model_id":"summit-x-850","confidence":0.92}`},
		},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                10,
			"output_tokens":               5,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     0,
		},
	}, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
	})
	defer ts.Close()

	client := newTestClient(ts.URL)
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Summit X 850 154"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_match_001", resp.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Contains(t, resp.Content[0].Text, "summit-x-850")
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)
}

func TestSDKClient_CreateMessage_CachedSystem(t *testing.T) {
	ts := jsonServer(t, http.StatusOK, map[string]any{
		"id":          "msg_primer",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": "{}"}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "max_tokens",
		"usage": map[string]any{
			"input_tokens":                50,
			"output_tokens":               1,
			"cache_creation_input_tokens": 5000,
			"cache_read_input_tokens":     0,
		},
	}, nil)
	defer ts.Close()

	temp := 0.0
	client := newTestClient(ts.URL)
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   1,
		System:      BuildCachedSystemBlocks(matchSystemPrompt),
		Messages:    []Message{{Role: "user", Content: "MXZ X 600R"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_primer", resp.ID)
	assert.Equal(t, int64(5000), resp.Usage.CacheCreationInputTokens)
}

func TestSDKClient_CreateMessage_Error(t *testing.T) {
	ts := jsonServer(t, http.StatusInternalServerError, apiError("api_error", "Internal server error"), nil)
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Summit X 850"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestSDKClient_CreateBatch(t *testing.T) {
	ts := jsonServer(t, http.StatusOK,
		batchBody("batch_catalog_001", "in_progress", map[string]any{"processing": 2}),
		func(r *http.Request) {
			assert.Contains(t, r.URL.Path, "/batches")
		})
	defer ts.Close()

	temp := 0.0
	client := newTestClient(ts.URL)
	resp, err := client.CreateBatch(context.Background(), BatchRequest{
		Requests: []BatchRequestItem{
			{CustomID: "skidoo-2026-p12-1", Params: MessageRequest{
				Model: "claude-haiku-4-5-20251001", MaxTokens: 512,
				System:      []SystemBlock{{Text: matchSystemPrompt}},
				Messages:    []Message{{Role: "user", Content: "Summit X 850 154"}},
				Temperature: &temp,
			}},
			{CustomID: "skidoo-2026-p12-2", Params: MessageRequest{
				Model: "claude-haiku-4-5-20251001", MaxTokens: 512,
				Messages: []Message{{Role: "user", Content: "MXZ X 600R"}},
			}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "batch_catalog_001", resp.ID)
	assert.Equal(t, "in_progress", resp.ProcessingStatus)
	assert.Equal(t, int64(2), resp.RequestCounts.Processing)
}

func TestSDKClient_CreateBatch_Error(t *testing.T) {
	ts := jsonServer(t, http.StatusTooManyRequests, apiError("rate_limit_error", "Rate limit exceeded"), nil)
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.CreateBatch(context.Background(), BatchRequest{
		Requests: []BatchRequestItem{
			{CustomID: "a", Params: MessageRequest{
				Model: "claude-haiku-4-5-20251001", MaxTokens: 512,
				Messages: []Message{{Role: "user", Content: "Rave RE 850"}},
			}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create batch")
}

func TestSDKClient_GetBatch(t *testing.T) {
	body := batchBody("batch_catalog_002", "ended", map[string]any{"succeeded": 5})
	body["results_url"] = "https://api.anthropic.com/results/batch_catalog_002"
	ts := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		assert.Contains(t, r.URL.Path, "batch_catalog_002")
	})
	defer ts.Close()

	client := newTestClient(ts.URL)
	resp, err := client.GetBatch(context.Background(), "batch_catalog_002")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "batch_catalog_002", resp.ID)
	assert.Equal(t, "ended", resp.ProcessingStatus)
	assert.Equal(t, int64(5), resp.RequestCounts.Succeeded)
	assert.Contains(t, resp.ResultsURL, "batch_catalog_002")
}

func TestSDKClient_GetBatch_NotFound(t *testing.T) {
	ts := jsonServer(t, http.StatusNotFound, apiError("not_found_error", "Batch not found"), nil)
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.GetBatch(context.Background(), "batch_nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: get batch")
}

func TestSDKClient_GetBatchResults(t *testing.T) {
	// The SDK streams JSONL from the results endpoint.
	jsonl := `{"custom_id":"skidoo-2026-p12-1","result":{"type":"succeeded","message":{"id":"msg_r1","type":"message","role":"assistant","content":[{"type":"text","text":"{\"base_model_id\":\"summit-x-850\"}"}],"model":"claude-haiku-4-5-20251001","stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5,"cache_creation_input_tokens":0,"cache_read_input_tokens":0}}}}` + "\n" +
		`{"custom_id":"skidoo-2026-p12-2","result":{"type":"succeeded","message":{"id":"msg_r2","type":"message","role":"assistant","content":[{"type":"text","text":"{\"base_model_id\":\"mxz-x-600\"}"}],"model":"claude-haiku-4-5-20251001","stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5,"cache_creation_input_tokens":0,"cache_read_input_tokens":0}}}}` + "\n"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "batch_catalog_003")
		w.Header().Set("Content-Type", "application/x-jsonlines")
		_, _ = w.Write([]byte(jsonl))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	iter, err := client.GetBatchResults(context.Background(), "batch_catalog_003")
	require.NoError(t, err)
	require.NotNil(t, iter)
	defer iter.Close() //nolint:errcheck

	var items []BatchResultItem
	for iter.Next() {
		items = append(items, iter.Item())
	}
	require.NoError(t, iter.Err())
	require.Len(t, items, 2)

	assert.Equal(t, "skidoo-2026-p12-1", items[0].CustomID)
	assert.Equal(t, "succeeded", items[0].Type)
	require.NotNil(t, items[0].Message)
	assert.Contains(t, items[0].Message.Content[0].Text, "summit-x-850")

	assert.Equal(t, "skidoo-2026-p12-2", items[1].CustomID)
	assert.Contains(t, items[1].Message.Content[0].Text, "mxz-x-600")
}

func TestSDKClient_GetBatchResults_Error(t *testing.T) {
	ts := jsonServer(t, http.StatusNotFound, apiError("not_found_error", "Batch not found"), nil)
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.GetBatchResults(context.Background(), "batch_nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: get batch results")
}
