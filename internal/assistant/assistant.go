// Package assistant turns free-text chat messages into calendar tool calls
// through an OpenAI chat completion and renders the reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teemow/calbot/internal/logging"
	"github.com/teemow/calbot/internal/tools"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gpt-4o"

// Replies sent when no tool output is available.
const (
	ReplyModelError = "Sorry, I encountered an error trying to process your request with the AI."
	ReplyNoAction   = "I received that, but I don't have a specific action to take."
)

const systemPromptFormat = "You are a helpful assistant managing Google Calendar. " +
	"Use the available tools to fulfill user requests. Ask for clarification if needed. " +
	"Assume the current year is %d unless specified otherwise."

// CompletionService creates chat completions. *openai.ChatCompletionService
// implements it.
type CompletionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Dispatcher executes tool invocations. *tools.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, inv tools.Invocation) tools.Result
}

// Options configures an Assistant.
type Options struct {
	Completions CompletionService
	Dispatcher  Dispatcher
	Model       string
	Logger      *slog.Logger

	// Clock supplies the current time for the system prompt. Defaults to time.Now.
	Clock func() time.Time
}

// Assistant answers one user message with at most one model round trip.
type Assistant struct {
	completions CompletionService
	dispatcher  Dispatcher
	model       string
	tools       []openai.ChatCompletionToolParam
	now         func() time.Time
	logger      *slog.Logger
}

// NewCompletionService builds the OpenAI chat completion service.
// baseURL and httpClient are optional.
func NewCompletionService(apiKey, baseURL string, httpClient *http.Client) *openai.ChatCompletionService {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)
	return &client.Chat.Completions
}

// New creates an Assistant.
func New(opts Options) *Assistant {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Assistant{
		completions: opts.Completions,
		dispatcher:  opts.Dispatcher,
		model:       model,
		tools:       toolParams(tools.Definitions()),
		now:         now,
		logger:      logging.WithComponent(logger, "assistant"),
	}
}

func toolParams(defs []tools.Definition) []openai.ChatCompletionToolParam {
	params := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params = append(params, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		})
	}
	return params
}

// SystemPrompt returns the instructions sent ahead of every user message.
func (a *Assistant) SystemPrompt() string {
	return fmt.Sprintf(systemPromptFormat, a.now().Year())
}

// Reply sends text to the model and returns the message for the user.
// Tool calls are dispatched in order and their results concatenated; the
// results are not sent back to the model.
func (a *Assistant) Reply(ctx context.Context, userID int64, text string) string {
	logger := logging.WithUser(a.logger, userID)

	completion, err := a.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.SystemPrompt()),
			openai.UserMessage(text),
		},
		Tools: a.tools,
	})
	if err != nil {
		logger.Error("Chat completion failed", logging.Err(err))
		return ReplyModelError
	}
	if len(completion.Choices) == 0 {
		logger.Error("Chat completion returned no choices")
		return ReplyModelError
	}

	msg := completion.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		logger.Debug("Model replied without tool calls")
		if strings.TrimSpace(msg.Content) == "" {
			return ReplyNoAction
		}
		return msg.Content
	}

	results := make([]string, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		res := a.dispatcher.Dispatch(ctx, userID, tools.Invocation{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
		results = append(results, fmt.Sprintf("Tool: %s\nResult:\n%s", call.Function.Name, res.Text()))
	}
	logger.Info("Executed tool calls", "count", len(results))
	return "Executed Actions:\n" + strings.Join(results, "\n\n")
}
