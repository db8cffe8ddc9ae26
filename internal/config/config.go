package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM      LLMConfig     `mapstructure:"llm"`
	Server   ServerConfig  `mapstructure:"server"`
	Guard    GuardConfig   `mapstructure:"guard"`
	Sales    SalesConfig   `mapstructure:"sales"`
	History  HistoryConfig `mapstructure:"history"`
	LogLevel string        `mapstructure:"log_level"`
}

// LLMConfig holds the LLM provider configuration
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// GuardConfig holds the input-guard rule configuration. Rule sets left empty
// fall back to the compiled-in defaults, so a config file only needs to list
// rules when it wants to replace them wholesale.
type GuardConfig struct {
	MaxMessageLength  int             `mapstructure:"max_message_length"`
	RuleTimeoutMillis int             `mapstructure:"rule_timeout_millis"`
	InjectionRules    []InjectionRule `mapstructure:"injection_rules"`
	DomainKeywords    []string        `mapstructure:"domain_keywords"`
	GreetingWords     []string        `mapstructure:"greeting_words"`
}

// InjectionRule is a named regex pattern evaluated by the guard.
type InjectionRule struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

// SalesConfig holds the sales store configuration
type SalesConfig struct {
	DBPath string `mapstructure:"db_path"`
	Seed   bool   `mapstructure:"seed"`
}

// HistoryConfig holds the audit transcript store configuration
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Load loads the configuration from config.yaml, or from the file named by
// the CONFIG_PATH environment variable when set.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("guard.max_message_length", 500)
	viper.SetDefault("guard.rule_timeout_millis", 100)
	viper.SetDefault("sales.db_path", "sales.db")
	viper.SetDefault("sales.seed", true)
	viper.SetDefault("history.db_path", "history.db")
	viper.SetDefault("log_level", "info")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
