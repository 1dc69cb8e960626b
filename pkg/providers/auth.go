package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// credential is a provider API key together with the variable it came from,
// so errors can name what to fix.
type credential struct {
	key string
	env string
}

func newCredential(key, env string) credential {
	return credential{key: strings.TrimSpace(key), env: env}
}

// resolve rejects empty keys and template placeholders copied from an
// example .env file.
func (c credential) resolve() (string, error) {
	switch {
	case c.key == "":
		return "", fmt.Errorf("%s is empty", c.env)
	case strings.HasPrefix(c.key, "${"), strings.HasPrefix(c.key, "<") && strings.HasSuffix(c.key, ">"):
		return "", fmt.Errorf("%s looks like an unresolved placeholder", c.env)
	}
	return c.key, nil
}

// authorizer decorates an outgoing chat-completions request.
type authorizer func(ctx context.Context, req *http.Request) error

func bearerAuth(c credential) authorizer {
	return func(_ context.Context, req *http.Request) error {
		key, err := c.resolve()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+key)
		return nil
	}
}
