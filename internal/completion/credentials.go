package completion

import (
	"fmt"
	"strings"

	"github.com/kalambet/atelier/internal/workspace"
)

// DefaultProvider is used when a workspace has not chosen a provider.
const DefaultProvider = "chatgpt"

// Credentials resolves the active provider and its API key for one
// workspace. Keys are held per workspace in a provider→key map so multiple
// teams on one deployment never share credentials.
type Credentials struct {
	scope    *workspace.Scope
	fallback string
}

// NewCredentials creates a Credentials bound to the workspace scope.
func NewCredentials(scope *workspace.Scope) *Credentials {
	return &Credentials{scope: scope, fallback: DefaultProvider}
}

// WithFallback overrides the provider used when the workspace has not
// chosen one. Blank values keep the built-in default.
func (c *Credentials) WithFallback(provider string) *Credentials {
	if p := strings.TrimSpace(provider); p != "" {
		c.fallback = p
	}
	return c
}

// ActiveProvider returns the workspace's chosen provider, or the fallback
// if unset.
func (c *Credentials) ActiveProvider() (string, error) {
	stored, err := c.scope.ReadString(c.scope.ProviderKey())
	if err != nil {
		return "", fmt.Errorf("reading active provider: %w", err)
	}
	provider := strings.TrimSpace(stored)
	if provider == "" {
		return c.fallback, nil
	}
	return provider, nil
}

// SetActiveProvider records the workspace's provider choice.
func (c *Credentials) SetActiveProvider(provider string) error {
	return c.scope.WriteString(c.scope.ProviderKey(), strings.TrimSpace(provider))
}

// APIKey returns the trimmed key configured for provider, or "" when none
// is stored.
func (c *Credentials) APIKey(provider string) (string, error) {
	keys := make(map[string]string)
	if _, err := c.scope.ReadJSON(c.scope.APIKeysKey(), &keys); err != nil {
		return "", fmt.Errorf("reading API keys: %w", err)
	}
	return strings.TrimSpace(keys[provider]), nil
}

// SetAPIKey stores the key for provider, persisting the full map.
func (c *Credentials) SetAPIKey(provider, key string) error {
	keys := make(map[string]string)
	if _, err := c.scope.ReadJSON(c.scope.APIKeysKey(), &keys); err != nil {
		return fmt.Errorf("reading API keys: %w", err)
	}
	keys[provider] = key
	if err := c.scope.WriteJSON(c.scope.APIKeysKey(), keys); err != nil {
		return fmt.Errorf("persisting API keys: %w", err)
	}
	return nil
}
