package anthropic

import (
	"encoding/base64"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:         "msg_test_123",
		Model:      "claude-sonnet-4-5-20250929",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"title":"Pancakes"}`},
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
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, `{"title":"Pancakes"}`, resp.Text())
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestResponseText_SkipsNonTextBlocks(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "hmm"},
		{Type: "text", Text: "part one "},
		{Type: "text", Text: "part two"},
	}}
	assert.Equal(t, "part one part two", resp.Text())
}

func TestToSDKMessages_TextAndImageBlocks(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	msgs := toSDKMessages([]Message{
		{Role: "user", Blocks: []Block{
			{Type: "text", Text: "Extract the recipe from this photo."},
			{Type: "image", MediaType: "image/jpeg", Data: raw},
		}},
		TextMessage("assistant", "{"),
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	require.Len(t, msgs[0].Content, 2)
	require.NotNil(t, msgs[0].Content[0].OfText)
	assert.Equal(t, "Extract the recipe from this photo.", msgs[0].Content[0].OfText.Text)
	require.NotNil(t, msgs[0].Content[1].OfImage)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), msgs[0].Content[1].OfImage.Source.OfBase64.Data)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	blocks := toSDKSystemBlocks(BuildCachedSystemBlocks("You are a recipe extractor."))
	require.Len(t, blocks, 1)
	assert.Equal(t, "You are a recipe extractor.", blocks[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), blocks[0].CacheControl.TTL)
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.0, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
	assert.Zero(t, usage.EstimateCost("unknown-model"))
}

func TestNewClient_LimiterOptions(t *testing.T) {
	c, ok := NewClient("test-key", Options{RequestsPerMinute: 120, Burst: 6}).(*sdkClient)
	require.True(t, ok)
	assert.InDelta(t, 2.0, float64(c.limiter.Limit()), 0.001)
	assert.Equal(t, 6, c.limiter.Burst())

	// Zero burst defaults to a full minute's worth.
	c, ok = NewClient("test-key", Options{RequestsPerMinute: 120}).(*sdkClient)
	require.True(t, ok)
	assert.Equal(t, 120, c.limiter.Burst())
}
