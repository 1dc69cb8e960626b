package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
)

const (
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultGeminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

func init() {
	RegisterFactory(ProviderOpenAI, func(cfg *config.Config, model string) (Provider, error) {
		return newOpenAIProvider(ProviderOpenAI, cfg.Providers.OpenAI, "", orDefault(model, defaultOpenAIModel))
	}, func(cfg *config.Config) bool {
		return strings.TrimSpace(cfg.Providers.OpenAI.APIKey) != ""
	})
	RegisterFactory(ProviderGemini, func(cfg *config.Config, model string) (Provider, error) {
		return newOpenAIProvider(ProviderGemini, cfg.Providers.Gemini, defaultGeminiAPIURL, orDefault(model, defaultGeminiModel))
	}, func(cfg *config.Config) bool {
		return strings.TrimSpace(cfg.Providers.Gemini.APIKey) != ""
	})
}

// openaiProvider drives any OpenAI-compatible endpoint through openai-go.
// Gemini is reached through its OpenAI compatibility surface.
type openaiProvider struct {
	name   string
	model  string
	client openai.Client
}

func newOpenAIProvider(name string, pc config.ProviderConfig, defaultBase, model string) (*openaiProvider, error) {
	apiKey, err := newCredential(pc.APIKey, credentialEnv[name]).resolve()
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	base := strings.TrimSpace(pc.APIBase)
	if base == "" {
		base = defaultBase
	}
	if base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if proxy := strings.TrimSpace(pc.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy: %w", name, err)
		}
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}
	return &openaiProvider{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
	}, nil
}

func (p *openaiProvider) Name() string  { return p.name }
func (p *openaiProvider) Model() string { return p.model }

func (p *openaiProvider) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
		Temperature:         openai.Float(defaultTemperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := augmentProviderError(p.name, apiErr.StatusCode, apiErr.Message)
			return "", fmt.Errorf("%s API request failed: status=%d error=%s", p.name, apiErr.StatusCode, msg)
		}
		return "", fmt.Errorf("%s request: %w", p.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
