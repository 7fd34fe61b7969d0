package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath resolves the configuration file location: the
// PA_CONFIG_PATH environment variable when set, otherwise ./agent.yaml.
func DefaultConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return "agent.yaml"
}

// Load reads, decodes and validates the configuration file, applying defaults
// for absent sections.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Agents == nil {
		c.Agents = map[string]AgentProfile{}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8420
	}
	if c.Database.Path == "" {
		c.Database.Path = "steward.db"
	}
	if c.Scheduler.TickSeconds == 0 {
		c.Scheduler.TickSeconds = 10
	}
	for id, profile := range c.Agents {
		if profile.Generation.MaxOutputTokens == 0 {
			profile.Generation.MaxOutputTokens = 1024
			c.Agents[id] = profile
		}
	}
}

// GetAgent returns the profile for agentID, falling back to the default
// profile for unknown ids with a warning. Policy: unknown agents are served
// with the default persona rather than rejected.
func (c *Config) GetAgent(agentID string, logger *slog.Logger) AgentProfile {
	if profile, ok := c.Agents[agentID]; ok {
		return profile
	}
	if logger != nil {
		logger.Warn("unknown agent id, falling back to default profile", "agent_id", agentID)
	}
	return c.Agents[DefaultAgentID]
}

// Template is the agent.yaml written by `agent init`.
const Template = `# Steward personal-agent configuration.
providers:
  anthropic:
    apiKeyEnv: PA_ANTHROPIC_API_KEY
  openai:
    apiKeyEnv: PA_OPENAI_API_KEY

agents:
  default:
    persona:
      name: Steward
      systemPrompt: |
        You are Steward, a careful personal assistant. Answer concisely and
        use your tools when they help.
    model:
      provider: static
      modelId: static-echo
    generation:
      temperature: 0.7
      maxOutputTokens: 1024

server:
  port: 8420

database:
  path: steward.db

scheduler:
  tickSeconds: 10
`

// WriteTemplate writes the template config to path. Refuses to overwrite an
// existing file unless force is set.
func WriteTemplate(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, []byte(Template), 0o644); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}
