package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_match_01",
		Model:        "claude-haiku-4-5-20251001",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"base_model_id":"summit-x-850",`},
			{Type: "text", Text: `"confidence":0.92}`},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_match_01", resp.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Contains(t, resp.Content[0].Text, "summit-x-850")
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:         "msg_empty",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "max_tokens",
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "max_tokens", resp.StopReason)
	assert.Zero(t, resp.Usage.InputTokens)
}

func TestFromSDKBatch(t *testing.T) {
	sdkBatch := &sdk.MessageBatch{
		ID:               "batch_catalog_2026",
		ProcessingStatus: "ended",
		ResultsURL:       "https://api.anthropic.com/results/batch_catalog_2026",
		RequestCounts: sdk.MessageBatchRequestCounts{
			Succeeded: 8,
			Errored:   1,
			Expired:   1,
		},
	}

	resp := fromSDKBatch(sdkBatch)
	require.NotNil(t, resp)
	assert.Equal(t, "batch_catalog_2026", resp.ID)
	assert.Equal(t, "ended", resp.ProcessingStatus)
	assert.Equal(t, "https://api.anthropic.com/results/batch_catalog_2026", resp.ResultsURL)
	assert.Equal(t, int64(8), resp.RequestCounts.Succeeded)
	assert.Equal(t, int64(1), resp.RequestCounts.Errored)
	assert.Equal(t, int64(1), resp.RequestCounts.Expired)
	assert.Zero(t, resp.RequestCounts.Processing)
	assert.Zero(t, resp.RequestCounts.Canceled)
}

func TestFromSDKBatch_InProgress(t *testing.T) {
	sdkBatch := &sdk.MessageBatch{
		ID:               "batch_prog",
		ProcessingStatus: "in_progress",
		RequestCounts:    sdk.MessageBatchRequestCounts{Processing: 10},
	}

	resp := fromSDKBatch(sdkBatch)
	assert.Equal(t, "in_progress", resp.ProcessingStatus)
	assert.Equal(t, int64(10), resp.RequestCounts.Processing)
	assert.Empty(t, resp.ResultsURL)
}

func TestFromSDKBatchResult_Succeeded(t *testing.T) {
	sdkResp := sdk.MessageBatchIndividualResponse{
		CustomID: "skidoo-2026-p12-1",
		Result: sdk.MessageBatchResultUnion{
			Type: "succeeded",
			Message: sdk.Message{
				ID:         "msg_result_1",
				Model:      "claude-haiku-4-5-20251001",
				StopReason: "end_turn",
				Content: []sdk.ContentBlockUnion{
					{Type: "text", Text: `{"base_model_id":"mxz-x-600"}`},
				},
				Usage: sdk.Usage{InputTokens: 200, OutputTokens: 30},
			},
		},
	}

	item := fromSDKBatchResult(sdkResp)
	assert.Equal(t, "skidoo-2026-p12-1", item.CustomID)
	assert.Equal(t, "succeeded", item.Type)
	require.NotNil(t, item.Message)
	assert.Equal(t, "msg_result_1", item.Message.ID)
	assert.Contains(t, item.Message.Content[0].Text, "mxz-x-600")
	assert.Equal(t, int64(200), item.Message.Usage.InputTokens)
}

func TestFromSDKBatchResult_NonSucceededHasNoMessage(t *testing.T) {
	for _, typ := range []string{"errored", "canceled", "expired"} {
		t.Run(typ, func(t *testing.T) {
			item := fromSDKBatchResult(sdk.MessageBatchIndividualResponse{
				CustomID: "item_" + typ,
				Result:   sdk.MessageBatchResultUnion{Type: typ},
			})
			assert.Equal(t, "item_"+typ, item.CustomID)
			assert.Equal(t, typ, item.Type)
			assert.Nil(t, item.Message)
		})
	}
}

func TestToSDKMessages(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
		want int
	}{
		{"user only", []Message{{Role: "user", Content: "Summit X 850 154"}}, 1},
		{"assistant only", []Message{{Role: "assistant", Content: "matched"}}, 1},
		{"mixed roles", []Message{
			{Role: "user", Content: "MXZ X 600R"},
			{Role: "assistant", Content: `{"base_model_id":"mxz-x-600"}`},
			{Role: "user", Content: "Rave RE 850"},
		}, 3},
		{"unknown role defaults to user", []Message{{Role: "system", Content: "text"}}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, toSDKMessages(tt.msgs), tt.want)
		})
	}
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "You match snowmobile listings."},
		{Text: "Base model table follows.", CacheControl: &CacheControl{TTL: "1h"}},
	}

	sdkBlocks := toSDKSystemBlocks(blocks)
	require.Len(t, sdkBlocks, 2)
	assert.Equal(t, "You match snowmobile listings.", sdkBlocks[0].Text)
	assert.Equal(t, "Base model table follows.", sdkBlocks[1].Text)
	assert.NotNil(t, sdkBlocks[1].CacheControl)
}

func TestNewClient_ImplementsClient(t *testing.T) {
	client := NewClient("test-api-key")
	require.NotNil(t, client)

	var _ Client = client
}

func TestMockBatchResultIterator(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		iter := NewMockBatchResultIterator(nil)
		assert.False(t, iter.Next())
		assert.NoError(t, iter.Err())
		assert.NoError(t, iter.Close())
	})

	t.Run("walks items in order", func(t *testing.T) {
		iter := NewMockBatchResultIterator([]BatchResultItem{
			{CustomID: "a", Type: "succeeded"},
			{CustomID: "b", Type: "errored"},
		})
		assert.True(t, iter.Next())
		assert.Equal(t, "a", iter.Item().CustomID)
		assert.True(t, iter.Next())
		assert.Equal(t, "b", iter.Item().CustomID)
		assert.False(t, iter.Next())
		assert.NoError(t, iter.Err())
	})

	t.Run("reports error after last item", func(t *testing.T) {
		iter := NewMockBatchResultIteratorWithError([]BatchResultItem{
			{CustomID: "a", Type: "succeeded"},
		}, assert.AnError)
		assert.True(t, iter.Next())
		assert.False(t, iter.Next())
		assert.Equal(t, assert.AnError, iter.Err())
	})
}
