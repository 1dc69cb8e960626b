package providers

import (
	"net/http"
	"strings"
)

var credentialEnv = map[string]string{
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
}

// augmentProviderError appends an operator hint for the failures people hit
// most often when wiring judge credentials.
func augmentProviderError(providerName string, status int, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}
	providerName = NormalizeProviderName(providerName)
	lower := strings.ToLower(msg)

	if status == http.StatusUnauthorized || strings.Contains(lower, "incorrect api key") || strings.Contains(lower, "invalid api key") {
		if env, ok := credentialEnv[providerName]; ok {
			return msg + " Hint: check " + env + "."
		}
	}
	if status == http.StatusNotFound && strings.Contains(lower, "model") {
		return msg + " Hint: the judge model name is not available for " + providerName + "; set PRIMARY_JUDGE_MODEL or SECONDARY_JUDGE_MODEL."
	}
	if status == http.StatusTooManyRequests {
		return msg + " Hint: the judge falls back to rules while " + providerName + " is rate limited."
	}
	return msg
}
