package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/pkg/anthropic"
)

const extractionSystemPrompt = `You are a recipe extraction service. Given the text of a web page or a photo of a recipe, extract the recipe and respond with a single JSON object and nothing else. The object has these fields:
- "title": string
- "description": string (optional)
- "ingredients": array of {"name", "amount", "unit", "preparation", "display_text"}, where display_text is the original wording
- "instructions": array of strings, one step each
- "metadata": {"author", "servings", "prep_minutes", "cook_minutes", "total_minutes", "categories"} with minutes as integers
Match the original wording as closely as possible. If no recipe is present, respond with {"title": ""}.`

// AI extracts recipes through the wrapped Anthropic client. Web sources are
// reduced to readable article text first so page chrome does not burn
// tokens; uploads are sent as image blocks.
type AI struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAI(client anthropic.Client, modelID string, maxTokens int64) *AI {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AI{client: client, model: modelID, maxTokens: maxTokens}
}

func (a *AI) Name() string { return "claude" }

func (a *AI) Method() model.Method { return model.MethodAI }

// Supports accepts any source that carries bytes.
func (a *AI) Supports(src Source) bool {
	return len(src.Body) > 0
}

func (a *AI) Extract(ctx context.Context, src Source) (*model.Recipe, error) {
	if !a.Supports(src) {
		return nil, eris.Wrapf(ErrUnsupportedSource, "backend %s: empty source", a.Name())
	}

	msg, err := a.buildMessage(src)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractionSystemPrompt),
		Messages:  []anthropic.Message{msg},
	})
	if err != nil {
		return nil, extractionError(a.Name(), err)
	}
	resp.Usage.LogCost(a.model, "extract")

	recipe, err := parseRecipeJSON(resp.Text())
	if err != nil {
		return nil, extractionError(a.Name(), err)
	}
	if recipe.Title == "" {
		return nil, extractionError(a.Name(), eris.New("model found no recipe in source"))
	}
	if src.URL != "" {
		recipe.SourceURL = src.URL
	}

	zap.L().Debug("extract: ai hit",
		zap.String("key", string(src.Key)),
		zap.String("title", recipe.Title),
	)
	return recipe, nil
}

func (a *AI) buildMessage(src Source) (anthropic.Message, error) {
	if src.Kind == model.SourceKindUpload && strings.HasPrefix(src.ContentType, "image/") {
		return anthropic.Message{
			Role: "user",
			Blocks: []anthropic.Block{
				{Type: "text", Text: "Extract the recipe from this image."},
				{Type: "image", MediaType: src.ContentType, Data: src.Body},
			},
		}, nil
	}

	text := string(src.Body)
	if src.Kind == model.SourceKindURL {
		text = readableText(src.URL, src.Body)
	}
	prompt := fmt.Sprintf("Extract the recipe from the following page text.\n\n%s", text)
	return anthropic.TextMessage("user", prompt), nil
}

// readableText strips page chrome with go-readability, falling back to the
// raw document when reduction fails.
func readableText(rawURL string, body []byte) string {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return string(body)
	}
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(body), pageURL)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return string(body)
	}
	return article.TextContent
}

// parseRecipeJSON decodes the model's response, tolerating a fenced code
// block around the JSON object.
func parseRecipeJSON(text string) (*model.Recipe, error) {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var recipe model.Recipe
	if err := json.Unmarshal([]byte(text), &recipe); err != nil {
		return nil, eris.Wrap(err, "decode model response")
	}
	return &recipe, nil
}
