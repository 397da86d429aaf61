package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// systemCacheTTL is the prompt cache lifetime requested for shared system
// prompts. An hour comfortably covers one catalog reconciliation run.
const systemCacheTTL = "1h"

// BuildCachedSystemBlocks wraps a system prompt in a content block with a
// cache breakpoint. Matching prompts in later requests read the cached
// prefix instead of paying full input-token price.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: systemCacheTTL},
	}}
}

// PrimerRequest issues one sequential message to warm the prompt cache
// before a batch of requests sharing the same system blocks is submitted.
// The response content is usually discarded; only the cache write matters.
func PrimerRequest(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: primer request")
	}
	return resp, nil
}
