// Package llmgateway is the LLM Gateway (C12): single-turn, JSON-constrained
// calls against whichever profile config selects, fixed prompt templates for
// topic metadata, parent-cluster metadata, intent parsing, and answer
// synthesis (§4.12, §6).
package llmgateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	openaisdk "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/pipeline"
)

// interCallPause is the ~2-second pause §4.12 requires between consecutive
// LLM calls, to stay within provider rate limits during a batch stage.
const interCallPause = 2 * time.Second

// completer is a single-turn LLM backend: one system/user prompt pair in,
// one text response out. No tool use, no streaming — everything C12 needs
// is a single request/response round trip.
type completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

// Gateway is the C12 contract used by C8, C9, and C11.
type Gateway struct {
	mu            sync.Mutex
	lastCallAt    time.Time
	completers    map[string]completer
	profiles      map[string]config.LLMProfile
	defaultName   string
}

// New builds a Gateway from the resolved LLM profiles (§6: a JSON blob of
// model configs keyed by profile, one of which is the default).
func New(cfg config.Config) (*Gateway, error) {
	g := &Gateway{
		completers:  make(map[string]completer, len(cfg.LLMProfiles)),
		profiles:    cfg.LLMProfiles,
		defaultName: cfg.DefaultLLMProfile,
	}
	for name, p := range cfg.LLMProfiles {
		c, err := newCompleter(p)
		if err != nil {
			return nil, fmt.Errorf("llmgateway: profile %q: %w", name, err)
		}
		g.completers[name] = c
	}
	if _, ok := g.completers[g.defaultName]; !ok {
		return nil, fmt.Errorf("llmgateway: default profile %q has no completer", g.defaultName)
	}
	return g, nil
}

// FuncCompleter adapts a plain function to the completer interface so a
// caller that already has some other way of producing a completion (tests,
// or a backend not built through newCompleter) can still build a Gateway.
type FuncCompleter func(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)

// Complete implements completer.
func (f FuncCompleter) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	return f(ctx, system, user, temperature, maxTokens)
}

// NewWithCompleter builds a Gateway around a single already-constructed
// completer under the given profile name, bypassing provider resolution.
func NewWithCompleter(profileName string, profile config.LLMProfile, c FuncCompleter) *Gateway {
	return &Gateway{
		completers:  map[string]completer{profileName: c},
		profiles:    map[string]config.LLMProfile{profileName: profile},
		defaultName: profileName,
	}
}

func newCompleter(p config.LLMProfile) (completer, error) {
	switch strings.ToLower(p.Provider) {
	case "anthropic":
		return newAnthropicCompleter(p), nil
	case "openai":
		return newOpenAICompleter(p), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Provider)
	}
}

// complete enforces the inter-call pause, picks the default profile's
// completer, and runs it with a single retry on transient errors (§7: "no
// automatic retry on 4xx, single retry on transient errors").
func (g *Gateway) complete(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	if wait := interCallPause - time.Since(g.lastCallAt); wait > 0 && !g.lastCallAt.IsZero() {
		g.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		g.mu.Lock()
	}
	g.lastCallAt = time.Now()
	g.mu.Unlock()

	profile := g.profiles[g.defaultName]
	c := g.completers[g.defaultName]

	var out string
	var callErr error
	out, callErr = c.Complete(ctx, system, user, profile.Temperature, profile.MaxTokens)
	if callErr == nil {
		return out, nil
	}
	if isClientError(callErr) {
		// §7: no automatic retry on 4xx — a bad prompt template will not
		// succeed on a second attempt.
		log.Error().Err(callErr).Str("profile", g.defaultName).Msg("llm_client_error")
		return "", callErr
	}

	// The failed call above was the first attempt; exactly one retry follows.
	err := pipeline.RetryLinear(ctx, 1, 0, "llmgateway.complete", func() error {
		out, callErr = c.Complete(ctx, system, user, profile.Temperature, profile.MaxTokens)
		return callErr
	})
	return out, err
}

func isClientError(err error) bool {
	return strings.Contains(err.Error(), "400") || strings.Contains(err.Error(), "401") || strings.Contains(err.Error(), "403") || strings.Contains(err.Error(), "404")
}

// anthropicCompleter implements completer against the Anthropic Messages API.
type anthropicCompleter struct {
	sdk   anthropicsdk.Client
	model string
}

func newAnthropicCompleter(p config.LLMProfile) *anthropicCompleter {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(p.BaseURL))
	}
	return &anthropicCompleter{sdk: anthropicsdk.NewClient(opts...), model: p.Model}
}

func (c *anthropicCompleter) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropicsdk.Float(temperature),
		System:      []anthropicsdk.TextBlockParam{{Text: system}},
		Messages:    []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(user))},
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}

// openAICompleter implements completer against the Chat Completions API.
type openAICompleter struct {
	sdk   openaisdk.Client
	model string
}

func newOpenAICompleter(p config.LLMProfile) *openAICompleter {
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(p.BaseURL))
	}
	return &openAICompleter{sdk: openaisdk.NewClient(opts...), model: p.Model}
}

func (c *openAICompleter) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(user),
		},
		Temperature: param.NewOpt(temperature),
		MaxTokens:   param.NewOpt(int64(maxTokens)),
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
