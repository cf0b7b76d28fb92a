package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/factory"
	"github.com/kilianp07/usef/core/lifecycle"
	"github.com/kilianp07/usef/core/metrics"
	"github.com/kilianp07/usef/infra/registry"
)

// Config is the full configuration of one role node.
type Config struct {
	Node      NodeConfig           `json:"node"`
	Lifecycle lifecycle.Config     `json:"lifecycle"`
	Exchange  exchange.Config      `json:"exchange"`
	Transport factory.ModuleConfig `json:"transport"`
	Planboard factory.ModuleConfig `json:"planboard"`
	Metrics   metrics.Config       `json:"metrics"`
	Keystore  KeystoreConfig       `json:"keystore"`
	Registry  RegistryConfig       `json:"registry"`
	HTTP      HTTPConfig           `json:"http"`
	Sweep     SweepConfig          `json:"sweep"`
	Archive   ArchiveConfig        `json:"archive"`
}

// KeystoreConfig locates the signing key database.
type KeystoreConfig struct {
	Path string `json:"path"`
}

func (c *KeystoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "keystore.db"
	}
}

// RegistryConfig selects the participant directory.
type RegistryConfig struct {
	// Mode is "static" or "cro".
	Mode   string           `json:"mode"`
	Static []registry.Entry `json:"static"`
	CRO    registry.CROConf `json:"cro"`
}

func (c *RegistryConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "static"
	}
}

func (c RegistryConfig) Validate() error {
	switch c.Mode {
	case "static":
		return nil
	case "cro":
		if c.CRO.BaseURL == "" {
			return fmt.Errorf("registry mode cro needs cro.base_url")
		}
		return nil
	default:
		return fmt.Errorf("unknown registry mode %q", c.Mode)
	}
}

// HTTPConfig parameterizes the message receiver and operational API.
type HTTPConfig struct {
	// ReceiverAddr serves the inbound message endpoint.
	ReceiverAddr string `json:"receiver_addr"`
	// APIAddr serves the operational API.
	APIAddr string `json:"api_addr"`
	// DeliverTimeoutMS bounds one outbound HTTP delivery.
	DeliverTimeoutMS int `json:"deliver_timeout_ms"`
	// MaxBodyBytes bounds one inbound message.
	MaxBodyBytes int64 `json:"max_body_bytes"`
	// APIToken protects the operational API; empty disables the check.
	APIToken string `json:"api_token"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.ReceiverAddr == "" {
		c.ReceiverAddr = ":8443"
	}
	if c.APIAddr == "" {
		c.APIAddr = ":8081"
	}
	if c.DeliverTimeoutMS == 0 {
		c.DeliverTimeoutMS = 30000
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// SweepConfig parameterizes the document re-creation sweep.
type SweepConfig struct {
	IntervalS int `json:"interval_s"`
}

func (c *SweepConfig) SetDefaults() {
	if c.IntervalS == 0 {
		c.IntervalS = 60
	}
}

// ArchiveConfig parameterizes document retention.
type ArchiveConfig struct {
	RetentionDays int `json:"retention_days"`
}

func (c *ArchiveConfig) SetDefaults() {
	if c.RetentionDays == 0 {
		c.RetentionDays = 30
	}
}

// Load reads, overrides and validates the configuration at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides. The callback already rewrites the
	// K_SECTION__KEY form to dotted paths, so the provider splits on ".".
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults section by section.
func (c *Config) SetDefaults() {
	c.Node.SetDefaults()
	c.Lifecycle.SetDefaults()
	c.Exchange.SetDefaults()
	c.Keystore.SetDefaults()
	c.Registry.SetDefaults()
	c.HTTP.SetDefaults()
	c.Sweep.SetDefaults()
	c.Archive.SetDefaults()
}

// Validate checks the configuration section by section.
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if err := c.Lifecycle.Validate(); err != nil {
		return err
	}
	if err := c.Exchange.Validate(); err != nil {
		return err
	}
	return c.Registry.Validate()
}
