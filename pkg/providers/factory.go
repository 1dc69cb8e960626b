package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
)

// ErrProviderDisabled means no credential is configured for the provider.
// Callers treat it as "use the fallback", never as a startup failure.
var ErrProviderDisabled = errors.New("provider disabled")

// Provider is a text-generation backend used by the judges.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, user string) (string, error)
}

type providerFactory struct {
	build      func(cfg *config.Config, model string) (Provider, error)
	configured func(cfg *config.Config) bool
}

var (
	factoryMu       sync.RWMutex
	factories       = map[string]providerFactory{}
	registrationErr error
)

func RegisterFactory(name string, build func(cfg *config.Config, model string) (Provider, error), configured func(cfg *config.Config) bool) {
	name = NormalizeProviderName(name)
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if name == "" {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory name is required"))
		return
	}
	if build == nil || configured == nil {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory %q is incomplete", name))
		return
	}
	factories[name] = providerFactory{build: build, configured: configured}
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CredentialConfigured reports whether name has the credential it needs.
func CredentialConfigured(cfg *config.Config, name string) bool {
	f, _, err := getFactory(name)
	if err != nil || cfg == nil {
		return false
	}
	return f.configured(cfg)
}

// CreateProvider builds the named provider. It returns ErrProviderDisabled
// when the provider has no credential and an error for unknown names.
func CreateProvider(cfg *config.Config, name, model string) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f, name, err := getFactory(name)
	if err != nil {
		return nil, err
	}
	if !f.configured(cfg) {
		return nil, fmt.Errorf("%s: %w", name, ErrProviderDisabled)
	}
	return f.build(cfg, strings.TrimSpace(model))
}

func getFactory(name string) (providerFactory, string, error) {
	name = NormalizeProviderName(name)

	factoryMu.RLock()
	defer factoryMu.RUnlock()
	if registrationErr != nil {
		return providerFactory{}, name, fmt.Errorf("provider registration failed: %w", registrationErr)
	}
	f, ok := factories[name]
	if !ok {
		names := make([]string, 0, len(factories))
		for n := range factories {
			names = append(names, n)
		}
		sort.Strings(names)
		return providerFactory{}, name, fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(names, ", "))
	}
	return f, name, nil
}
