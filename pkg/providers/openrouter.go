package providers

import (
	"strings"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
)

const (
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "google/gemini-2.0-flash-001"
)

func init() {
	RegisterFactory(ProviderOpenRouter, newOpenRouterProviderFromConfig, func(cfg *config.Config) bool {
		return strings.TrimSpace(cfg.Providers.OpenRouter.APIKey) != ""
	})
}

func newOpenRouterProviderFromConfig(cfg *config.Config, model string) (Provider, error) {
	pc := cfg.Providers.OpenRouter
	apiBase := strings.TrimSpace(pc.APIBase)
	if apiBase == "" {
		apiBase = defaultOpenRouterAPIBase
	}
	if model == "" {
		model = defaultOpenRouterModel
	}
	return newChatCompletionsProvider(
		ProviderOpenRouter,
		apiBase,
		model,
		pc.Proxy,
		bearerAuth(newCredential(pc.APIKey, credentialEnv[ProviderOpenRouter])),
		map[string]string{"X-Title": "dotcommunity"},
	)
}
