package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

const (
	defaultRateLimit = 50.0 / 60.0 // 50 requests per minute
	defaultBurst     = 5
)

// LLMGateway sends extraction requests to a langchaingo model, declaring the
// allowed schemas as function tools.
type LLMGateway struct {
	model       llms.Model
	modelName   string
	limiter     *rate.Limiter
	temperature float64
	logger      *logging.Logger
}

// LLMOption configures an LLMGateway.
type LLMOption func(*LLMGateway)

// WithRateLimit sets the request rate (per second) and burst.
func WithRateLimit(perSecond float64, burst int) LLMOption {
	return func(g *LLMGateway) {
		if perSecond > 0 && burst > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithModelName overrides the provider's default model on each call.
func WithModelName(name string) LLMOption {
	return func(g *LLMGateway) { g.modelName = name }
}

// WithLogger sets the logger for wire-level tracing.
func WithLogger(l *logging.Logger) LLMOption {
	return func(g *LLMGateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewLLMGateway wraps model.
func NewLLMGateway(model llms.Model, opts ...LLMOption) *LLMGateway {
	g := &LLMGateway{
		model:       model,
		limiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		temperature: 0.2,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Extract implements Gateway.
func (g *LLMGateway) Extract(ctx context.Context, req Request) Outcome {
	if err := g.limiter.Wait(ctx); err != nil {
		return Failed(classifyError(ctx, err), fmt.Errorf("rate limiter: %w", err))
	}

	callOpts := []llms.CallOption{
		llms.WithTools(toolsFor(req.AllowedSchemas)),
		llms.WithTemperature(g.temperature),
	}
	if g.modelName != "" {
		callOpts = append(callOpts, llms.WithModel(g.modelName))
	}

	resp, err := g.model.GenerateContent(ctx, messagesFor(req), callOpts...)
	if err != nil {
		return Failed(classifyError(ctx, err), err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Failed(ReasonMalformedResponse, fmt.Errorf("response has no choices"))
	}

	choice := resp.Choices[0]
	call := firstFunctionCall(choice)
	if call == nil {
		return NoStructuredOutput(strings.TrimSpace(choice.Content))
	}

	g.logger.Trace(ctx, "tool call received",
		zap.String("tool", call.Name),
		zap.Int("arguments_bytes", len(call.Arguments)))

	kind, ok := schema.KindForTool(call.Name)
	if !ok {
		return Failed(ReasonUnknownTool, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name))
	}

	fields := map[string]any{}
	if args := strings.TrimSpace(call.Arguments); args != "" {
		if err := json.Unmarshal([]byte(args), &fields); err != nil {
			return Failed(ReasonMalformedResponse, fmt.Errorf("decode %s arguments: %w", call.Name, err))
		}
	}

	return SchemaSelected(kind, call.Name, fields)
}

// toolsFor declares each descriptor as a function tool.
func toolsFor(descriptors []schema.Descriptor) []llms.Tool {
	tools := make([]llms.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        string(d.Name),
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

// messagesFor renders prior turns and the prompt as human/AI messages. The
// rule preamble is a turn pair, never a system message.
func messagesFor(req Request) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(req.PriorTurns)+1)
	for _, t := range req.PriorTurns {
		role := llms.ChatMessageTypeHuman
		if t.Role == RoleModel {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Text))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
}

func firstFunctionCall(choice *llms.ContentChoice) *llms.FunctionCall {
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil {
			return tc.FunctionCall
		}
	}
	return choice.FuncCall
}
