// Package vault stores broker credentials in HashiCorp Vault, with a local
// in-memory fallback when Vault is disabled for development.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"ai-trader-engine/config"
)

// BrokerCredentials represents the broker API credentials stored in Vault
type BrokerCredentials struct {
	Broker    string `json:"broker"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	AccountID string `json:"account_id"`
	Paper     bool   `json:"paper"` // paper trading account
}

// Client wraps the HashiCorp Vault client with a per-user credential cache
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*BrokerCredentials
	cacheEnabled bool
}

// NewClient creates a Vault client. With Vault disabled the client operates
// cache-only, which is sufficient for local development.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]*BrokerCredentials),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]*BrokerCredentials),
		cacheEnabled: true,
	}, nil
}

// StoreCredentials stores broker credentials for a user
func (c *Client) StoreCredentials(ctx context.Context, userID string, creds BrokerCredentials) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[c.cacheKey(userID, creds.Broker, creds.Paper)] = &creds
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(userID, creds.Broker, creds.Paper)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"broker":     creds.Broker,
			"api_key":    creds.APIKey,
			"api_secret": creds.APISecret,
			"account_id": creds.AccountID,
			"paper":      creds.Paper,
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, path, secretData)
	if err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[c.cacheKey(userID, creds.Broker, creds.Paper)] = &creds
		c.mu.Unlock()
	}

	return nil
}

// GetCredentials retrieves broker credentials for a user
func (c *Client) GetCredentials(ctx context.Context, userID, broker string, paper bool) (*BrokerCredentials, error) {
	if c.cacheEnabled {
		c.mu.RLock()
		if cached, ok := c.cache[c.cacheKey(userID, broker, paper)]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("credentials not found and vault is disabled")
	}

	path := c.secretPath(userID, broker, paper)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &BrokerCredentials{
		Broker:    getString(data, "broker"),
		APIKey:    getString(data, "api_key"),
		APISecret: getString(data, "api_secret"),
		AccountID: getString(data, "account_id"),
		Paper:     getBool(data, "paper"),
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[c.cacheKey(userID, broker, paper)] = creds
		c.mu.Unlock()
	}

	return creds, nil
}

// DeleteCredentials removes broker credentials for a user
func (c *Client) DeleteCredentials(ctx context.Context, userID, broker string, paper bool) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(userID, broker, paper))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.metadataPath(userID, broker, paper)

	_, err := c.client.Logical().DeleteWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}

	return nil
}

// RotateCredentials replaces stored credentials
func (c *Client) RotateCredentials(ctx context.Context, userID string, creds BrokerCredentials) error {
	return c.StoreCredentials(ctx, userID, creds)
}

// InvalidateCacheForUser removes cached credentials for a specific user
func (c *Client) InvalidateCacheForUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := userID + "/"
	for key := range c.cache {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.cache, key)
		}
	}
}

// SetCacheEnabled enables or disables caching
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) secretPath(userID, broker string, paper bool) string {
	return fmt.Sprintf("%s/data/%s/%s_%s", c.config.MountPath, userID, broker, accountKind(paper))
}

func (c *Client) metadataPath(userID, broker string, paper bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s_%s", c.config.MountPath, userID, broker, accountKind(paper))
}

func (c *Client) cacheKey(userID, broker string, paper bool) string {
	return fmt.Sprintf("%s/%s_%s", userID, broker, accountKind(paper))
}

func accountKind(paper bool) string {
	if paper {
		return "paper"
	}
	return "live"
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// NewMockClient creates a cache-only client for testing
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{
			Enabled: false,
		},
		cache:        make(map[string]*BrokerCredentials),
		cacheEnabled: true,
	}
}
