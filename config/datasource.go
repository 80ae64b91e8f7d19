package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadDataSources loads the data-source adapter configuration (endpoint
// URLs, rate limits, retry policy, RPC fallback chain) from a YAML file,
// creating a default file on first run the same way LoadRisk does.
func LoadDataSources(path string) (*DataSourceConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultDataSourceConfig()
		if err := writeYAML(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read datasource config: %w", err)
	}
	cfg := &DataSourceConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse datasource config: %w", err)
	}
	if err := ValidateDataSources(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultDataSourceConfig() *DataSourceConfig {
	defaultLimit := ProviderLimit{RequestsPerSecond: 5, Burst: 10}
	defaultRetry := RetryPolicy{MaxElapsed: 20 * time.Second, InitialBackoff: 250 * time.Millisecond}
	return &DataSourceConfig{
		WhaleFlow: SourceEndpoint{Name: "whale_flow", BaseURL: "https://whales.example.invalid", APIKey: "WHALE_FLOW_API_KEY", Limit: defaultLimit, Retry: defaultRetry, Timeout: 10 * time.Second},
		Price:     SourceEndpoint{Name: "price", BaseURL: "https://price.example.invalid", APIKey: "PRICE_API_KEY", Limit: defaultLimit, Retry: defaultRetry, Timeout: 10 * time.Second},
		Volume:    SourceEndpoint{Name: "volume", BaseURL: "https://volume.example.invalid", APIKey: "VOLUME_API_KEY", Limit: defaultLimit, Retry: defaultRetry, Timeout: 10 * time.Second},
		Pulse:     SourceEndpoint{Name: "pulse", BaseURL: "https://pulse.example.invalid", APIKey: "PULSE_API_KEY", Limit: defaultLimit, Retry: defaultRetry, Timeout: 10 * time.Second},
		Warden:    SourceEndpoint{Name: "warden", BaseURL: "https://warden.example.invalid", APIKey: "WARDEN_API_KEY", Limit: defaultLimit, Retry: defaultRetry, Timeout: 10 * time.Second},
		Quoter:    SourceEndpoint{Name: "quoter", BaseURL: "https://quote-api.jup.ag", Limit: ProviderLimit{RequestsPerSecond: 2, Burst: 4}, Retry: defaultRetry, Timeout: 10 * time.Second},
		RPCChain: []SourceEndpoint{
			{Name: "rpc-primary", BaseURL: "https://api.mainnet-beta.solana.com", Timeout: 10 * time.Second, Retry: defaultRetry},
		},
		TelegramURL: "TELEGRAM_BOT_TOKEN",
	}
}

// ValidateDataSources enforces that every configured source carries a usable
// rate limit and timeout; a zero-value source is rejected so the orchestrator
// never silently fans out to an unconfigured adapter.
func ValidateDataSources(cfg *DataSourceConfig) error {
	sources := []SourceEndpoint{cfg.WhaleFlow, cfg.Price, cfg.Volume, cfg.Pulse, cfg.Warden, cfg.Quoter}
	for _, src := range sources {
		if err := validateEndpoint(src); err != nil {
			return err
		}
	}
	if len(cfg.RPCChain) == 0 {
		return fmt.Errorf("datasource config: rpc_chain must not be empty")
	}
	for _, src := range cfg.RPCChain {
		if err := validateEndpoint(src); err != nil {
			return err
		}
	}
	return nil
}

func validateEndpoint(src SourceEndpoint) error {
	if src.Name == "" {
		return fmt.Errorf("datasource config: endpoint missing name")
	}
	if src.BaseURL == "" {
		return fmt.Errorf("datasource config: %s missing base_url", src.Name)
	}
	if src.Timeout <= 0 {
		return fmt.Errorf("datasource config: %s timeout must be > 0", src.Name)
	}
	if src.Limit.RequestsPerSecond <= 0 {
		return fmt.Errorf("datasource config: %s rate_limit.requests_per_second must be > 0", src.Name)
	}
	return nil
}
