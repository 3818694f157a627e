// ABOUTME: Configuration loading for sydney-bridge.
// ABOUTME: Loads TOML config with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete bridge configuration. Endpoints and credentials
// always travel through here; there is no process-wide mutable state.
type Config struct {
	Matrix  MatrixConfig  `toml:"matrix"`
	Backend BackendConfig `toml:"backend"`
	Bridge  BridgeConfig  `toml:"bridge"`
	Logging LoggingConfig `toml:"logging"`
}

// MatrixConfig holds the messaging-platform credentials.
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver"`
	UserID      string `toml:"user_id"`
	AccessToken string `toml:"access_token"`
}

// BackendConfig holds the chat backend endpoints, credential, and session tuning.
type BackendConfig struct {
	Cookie    string `toml:"cookie"`
	CreateURL string `toml:"create_url"`
	ChatURL   string `toml:"chat_url"`
	Locale    string `toml:"locale"`
	Market    string `toml:"market"`
	Region    string `toml:"region"`

	ResponseTimeout time.Duration `toml:"-"`
	ConversationTTL time.Duration `toml:"-"`

	// Raw duration strings for TOML unmarshaling
	ResponseTimeoutRaw string `toml:"response_timeout"`
	ConversationTTLRaw string `toml:"conversation_ttl"`
}

// BridgeConfig holds dispatcher behavior.
type BridgeConfig struct {
	AllowedRooms    []string `toml:"allowed_rooms"`
	CommandPrefix   string   `toml:"command_prefix"`
	ResetCommand    string   `toml:"reset_command"`
	TypingIndicator bool     `toml:"typing_indicator"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default backend endpoints; overridable for proxies and tests.
const (
	DefaultCreateURL = "https://www.bing.com/turing/conversation/create"
	DefaultChatURL   = "wss://sydney.bing.com/sydney/ChatHub"
)

// DefaultResetCommand tears the sender's session down without contacting
// the backend.
const DefaultResetCommand = "/reset"

// Load reads config from the given path, expanding ${VAR} environment
// references and applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Backend.CreateURL == "" {
		c.Backend.CreateURL = DefaultCreateURL
	}
	if c.Backend.ChatURL == "" {
		c.Backend.ChatURL = DefaultChatURL
	}
	if c.Bridge.ResetCommand == "" {
		c.Bridge.ResetCommand = DefaultResetCommand
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
func (c *Config) parseDurations() error {
	var err error

	if c.Backend.ResponseTimeoutRaw != "" {
		c.Backend.ResponseTimeout, err = time.ParseDuration(c.Backend.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", c.Backend.ResponseTimeoutRaw, err)
		}
	}
	if c.Backend.ConversationTTLRaw != "" {
		c.Backend.ConversationTTL, err = time.ParseDuration(c.Backend.ConversationTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation_ttl %q: %w", c.Backend.ConversationTTLRaw, err)
		}
	}
	return nil
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	if c.Backend.Cookie == "" {
		return fmt.Errorf("backend.cookie is required")
	}

	u, err := url.Parse(c.Backend.CreateURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.create_url must be an http(s) URL")
	}
	w, err := url.Parse(c.Backend.ChatURL)
	if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
		return fmt.Errorf("backend.chat_url must be a ws(s) URL")
	}
	return nil
}
