package grammar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"

	openAISystemPrompt = `You are an English tutor checking a transcript of spoken practice.
Reply with JSON only, no prose, in this shape:
{"corrected":"<the full corrected text>","issues":[{"message":"<what is wrong>","suggestion":"<the fix>"}]}
Return an empty issues list when the text is already correct.`
)

// OpenAI asks a chat model for corrections. It never retries; the fallback
// decides what happens on failure.
type OpenAI struct {
	model string
	opts  []option.RequestOption
}

func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key missing; set OPENAI_API_KEY")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{model: model, opts: opts}, nil
}

func (o *OpenAI) Name() string { return "openai" }

type openAIReply struct {
	Corrected string `json:"corrected"`
	Issues    []struct {
		Message    string `json:"message"`
		Suggestion string `json:"suggestion"`
	} `json:"issues"`
}

func (o *OpenAI) Analyze(ctx context.Context, text string) (Analysis, error) {
	client := openai.NewClient(o.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openAISystemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Analysis{}, &HTTPError{Service: o.Name(), Status: apiErr.StatusCode, Body: apiErr.Message}
		}
		return Analysis{}, &NetworkError{Service: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, errors.New("openai: empty choices")
	}

	reply, err := parseOpenAIReply(resp.Choices[0].Message.Content)
	if err != nil {
		return Analysis{}, err
	}

	issues := make([]Issue, 0, len(reply.Issues))
	for _, is := range reply.Issues {
		suggestion := is.Suggestion
		if suggestion == "" {
			suggestion = genericSuggestion
		}
		issues = append(issues, Issue{Message: is.Message, Suggestion: suggestion})
	}
	corrected := reply.Corrected
	if corrected == "" {
		corrected = text
	}
	return Analysis{
		Corrected: corrected,
		Issues:    issues,
		Score:     Score(len(issues), remotePenalty),
		Analyzer:  o.Name(),
	}, nil
}

// parseOpenAIReply tolerates a markdown code fence around the JSON body.
func parseOpenAIReply(content string) (openAIReply, error) {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	var reply openAIReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &reply); err != nil {
		return openAIReply{}, fmt.Errorf("openai reply parse error: %w", err)
	}
	return reply, nil
}
