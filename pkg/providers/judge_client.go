package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
)

const (
	defaultJudgeTimeout = 20 * time.Second
	jsonUserPreamble    = "次の情報を元に、指定フォーマットのJSONだけを返してください。\n\n"
)

// JudgeClient wraps a Provider for one judge role. A client without a
// provider is disabled and every call returns ErrProviderDisabled.
type JudgeClient struct {
	role     string
	provider Provider
	timeout  time.Duration
	limiter  *rate.Limiter
}

func NewJudgeClient(role string, p Provider) *JudgeClient {
	return &JudgeClient{role: role, provider: p, timeout: defaultJudgeTimeout}
}

// NewJudgeClientFromConfig resolves the provider for a judge role. A missing
// credential yields a disabled client, not an error.
func NewJudgeClientFromConfig(cfg *config.Config, role, name, model string) (*JudgeClient, error) {
	p, err := CreateProvider(cfg, name, model)
	if err != nil {
		if errors.Is(err, ErrProviderDisabled) {
			logger.WarnCF("providers", "Judge provider has no credential, using fallback", map[string]any{
				"role":     role,
				"provider": NormalizeProviderName(name),
			})
			return NewJudgeClient(role, nil), nil
		}
		return nil, err
	}
	logger.InfoCF("providers", "Judge provider ready", map[string]any{
		"role":     role,
		"provider": p.Name(),
		"model":    p.Model(),
	})
	c := NewJudgeClient(role, p)
	c.SetRateLimit(cfg.Judges.RequestsPerMinute)
	return c, nil
}

// SetRateLimit paces provider calls to perMinute requests. Zero or less
// removes the limit.
func (c *JudgeClient) SetRateLimit(perMinute int) {
	if perMinute <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), max(1, perMinute/10))
}

func (c *JudgeClient) Enabled() bool {
	return c != nil && c.provider != nil
}

// Name returns the provider label recorded on decisions.
func (c *JudgeClient) Name() string {
	if !c.Enabled() {
		return "disabled"
	}
	if m := c.provider.Model(); m != "" {
		return c.provider.Name() + ":" + m
	}
	return c.provider.Name()
}

// GenerateJSON sends payload as a JSON user message and returns the raw
// model text. Callers extract the JSON object themselves.
func (c *JudgeClient) GenerateJSON(ctx context.Context, system string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", c.role, err)
	}
	return c.GenerateText(ctx, system, jsonUserPreamble+string(body))
}

func (c *JudgeClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("%s judge: %w", c.role, ErrProviderDisabled)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s judge: rate limit: %w", c.role, err)
		}
	}
	out, err := c.provider.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("%s judge: %w", c.role, err)
	}
	return out, nil
}
