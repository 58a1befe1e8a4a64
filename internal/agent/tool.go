package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/mcp"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// maxToolRounds bounds the function calling loop so a confused model
// cannot spin forever.
const maxToolRounds = 8

// ToolRuntime runs turns against an OpenAI-compatible model with MCP
// tools exposed as functions.
type ToolRuntime struct {
	client *openai.Client
	model  string
	logger *logger.Logger
}

func NewToolRuntime(apiKey, baseURL, modelName string, log *logger.Logger) *ToolRuntime {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &ToolRuntime{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
		logger: log,
	}
}

func (r *ToolRuntime) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	return r.run(ctx, req, nil)
}

func (r *ToolRuntime) SubmitStream(ctx context.Context, req SubmitRequest, emit EmitFunc) (*Result, error) {
	result, err := r.run(ctx, req, emit)
	if err != nil {
		return nil, err
	}
	emitChunks(result.Text, emit)
	return result, nil
}

func (r *ToolRuntime) run(ctx context.Context, req SubmitRequest, emit EmitFunc) (*Result, error) {
	session, err := mcp.Connect(ctx, req.ToolEndpoint)
	if err != nil {
		return nil, fmt.Errorf("connect tool server: %w", err)
	}
	defer session.Close()

	tools := make([]openai.Tool, 0, len(session.Tools()))
	for _, t := range session.Tools() {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	result := &Result{}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     r.model,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("agent completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("agent completion: empty response")
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			result.Text = choice.Content
			return result, nil
		}

		messages = append(messages, choice)
		for _, tc := range choice.ToolCalls {
			call := r.invoke(ctx, session, tc, emit)
			result.ToolCalls = append(result.ToolCalls, call)

			content := fmt.Sprintf("%v", call.Result["result"])
			if call.Error != "" {
				content = "Error: " + call.Error
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: tc.ID,
			})
		}
	}

	return nil, fmt.Errorf("agent exceeded %d tool rounds", maxToolRounds)
}

// invoke runs a single tool call. Tool failures are captured on the
// returned call rather than aborting the turn; the model sees them and
// can recover.
func (r *ToolRuntime) invoke(ctx context.Context, session *mcp.Session, tc openai.ToolCall, emit EmitFunc) model.ToolCall {
	args := map[string]any{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			r.logger.Warn("malformed tool arguments",
				zap.String("tool", tc.Function.Name),
				zap.Error(err))
		}
	}

	if emit != nil {
		emit(ToolCallStarted{Tool: tc.Function.Name, Parameters: args})
	}

	start := time.Now()
	output, err := session.Call(ctx, tc.Function.Name, args)
	call := model.ToolCall{
		Tool:       tc.Function.Name,
		Parameters: args,
		Result:     map[string]any{"result": output},
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		call.Error = err.Error()
		metrics.RecordToolCall(tc.Function.Name, "error")
	} else {
		metrics.RecordToolCall(tc.Function.Name, "ok")
	}

	if emit != nil {
		emit(ToolCallFinished{Call: call})
	}
	return call
}
