package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

func init() {
	RegisterFactory(ProviderAnthropic, func(cfg *config.Config, model string) (Provider, error) {
		return newAnthropicProvider(cfg.Providers.Anthropic, orDefault(model, defaultAnthropicModel))
	}, func(cfg *config.Config) bool {
		return strings.TrimSpace(cfg.Providers.Anthropic.APIKey) != ""
	})
}

type anthropicProvider struct {
	model  string
	client anthropic.Client
}

func newAnthropicProvider(pc config.ProviderConfig, model string) (*anthropicProvider, error) {
	apiKey, err := newCredential(pc.APIKey, credentialEnv[ProviderAnthropic]).resolve()
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if base := strings.TrimSpace(pc.APIBase); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if proxy := strings.TrimSpace(pc.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse anthropic proxy: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}
	return &anthropicProvider{model: model, client: anthropic.NewClient(opts...)}, nil
}

func (p *anthropicProvider) Name() string  { return ProviderAnthropic }
func (p *anthropicProvider) Model() string { return p.model }

func (p *anthropicProvider) Complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)},
		}},
		Temperature: param.NewOpt(defaultTemperature),
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			msg := augmentProviderError(ProviderAnthropic, apiErr.StatusCode, apiErr.Error())
			return "", fmt.Errorf("anthropic API request failed: status=%d error=%s", apiErr.StatusCode, msg)
		}
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
