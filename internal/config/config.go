// Package config loads and validates the agent.yaml configuration file.
package config

import (
	"fmt"
	"os"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "PA_CONFIG_PATH"

// DefaultAgentID is the profile every unknown agent id falls back to. A
// configuration without it is invalid.
const DefaultAgentID = "default"

// Config is the decoded agent.yaml.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Agents    map[string]AgentProfile   `yaml:"agents"`
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Scheduler SchedulerConfig           `yaml:"scheduler"`
}

// ProviderConfig names the credential and endpoint of one LLM provider.
type ProviderConfig struct {
	APIKeyEnv string `yaml:"apiKeyEnv"`
	APIURL    string `yaml:"apiUrl,omitempty"`
}

// APIKey resolves the provider's credential from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// AgentProfile configures one agent's persona, model and generation settings.
type AgentProfile struct {
	Persona    PersonaConfig    `yaml:"persona"`
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
}

// PersonaConfig is the agent's identity shown to the model.
type PersonaConfig struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// ModelConfig selects the provider and model for an agent.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"modelId"`
}

// GenerationConfig tunes sampling.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"maxOutputTokens"`
	TopP            float64 `yaml:"topP,omitempty"`
	Seed            int     `yaml:"seed,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig tunes the background scheduler.
type SchedulerConfig struct {
	TickSeconds int `yaml:"tickSeconds"`
}

// Validate checks the invariants a loaded config must hold.
func (c *Config) Validate() error {
	if _, ok := c.Agents[DefaultAgentID]; !ok {
		return fmt.Errorf("config: agent %q is mandatory", DefaultAgentID)
	}
	for id, profile := range c.Agents {
		if profile.Model.Provider == "" {
			return fmt.Errorf("config: agent %q has no model provider", id)
		}
		if profile.Model.Provider != "static" {
			if _, ok := c.Providers[profile.Model.Provider]; !ok {
				return fmt.Errorf("config: agent %q references unknown provider %q", id, profile.Model.Provider)
			}
		}
	}
	return nil
}
