// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v2"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "MAILTASK_CONFIG"

// DefaultConfigPath is used when neither an explicit path nor EnvConfigPath is given.
const DefaultConfigPath = "./config.yaml"

// Mail is the process-wide mail configuration (config.mail.*). It provides the
// default sender and subject and, when Host is set, the trusted system SMTP
// endpoint. Empty strings mean "not configured".
type Mail struct {
	From    string `yaml:"from"`
	Subject string `yaml:"subject"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      *bool  `yaml:"tls"`
	SSL      *bool  `yaml:"ssl"`
	Debug    *bool  `yaml:"debug"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Settings struct {
	Mail Mail `yaml:"mail"`
}

type Logging struct {
	// Debug switches to the development console encoder at debug level.
	Debug bool `yaml:"debug"`
}

// Kafka configures the optional Kafka audit sink.
type Kafka struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	BatchSize    int      `yaml:"batchSize"`
	BatchTimeout string   `yaml:"batchTimeout"`
	WriteTimeout string   `yaml:"writeTimeout"`
	RequiredAcks int      `yaml:"requiredAcks"`
	Async        bool     `yaml:"async"`
	Compression  string   `yaml:"compression"`
	TLS          bool     `yaml:"tls"`
	// SASLMechanism is one of PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
	SASLMechanism string `yaml:"saslMechanism"`
	SASLUsername  string `yaml:"saslUsername"`
	SASLPassword  string `yaml:"saslPassword"`
}

type Audit struct {
	// Log writes one structured log line per delivery attempt.
	Log   *bool  `yaml:"log"`
	Kafka *Kafka `yaml:"kafka"`
}

type Metrics struct {
	// Textfile, when set, receives the Prometheus metrics after each run in
	// the node_exporter textfile collector format.
	Textfile string `yaml:"textfile"`
}

type Config struct {
	Config  Settings `yaml:"config"`
	Logging Logging  `yaml:"logging"`
	Audit   Audit    `yaml:"audit"`
	Metrics Metrics  `yaml:"metrics"`
}

// Load loads the configuration from a file path.
// If configPath is empty, the MAILTASK_CONFIG environment variable is consulted
// and finally "./config.yaml" is used. A missing "./config.yaml" yields an
// empty configuration, a missing explicit path is an error.
func Load(configPath ...string) (Config, error) {
	var path string
	implicit := false

	switch {
	case len(configPath) > 0 && configPath[0] != "":
		path = configPath[0]
	case os.Getenv(EnvConfigPath) != "":
		path = os.Getenv(EnvConfigPath)
	default:
		path = DefaultConfigPath
		implicit = true
	}

	var config Config

	content, err := os.ReadFile(path)
	if implicit && errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("trying to open mailtask config file %s: %w", path, err)
	}

	err = yaml.UnmarshalStrict(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	return config, nil
}

// Defaults fills unset audit settings. The mail section is never touched so
// the system SMTP endpoint is exactly what the operator wrote.
func (c *Config) Defaults() error {
	logOn := true
	if err := mergo.Merge(&c.Audit, Audit{Log: &logOn}); err != nil {
		return fmt.Errorf("applying audit defaults: %w", err)
	}
	if c.Audit.Kafka != nil {
		err := mergo.Merge(c.Audit.Kafka, Kafka{
			Topic:        "mailtask.deliveries",
			BatchSize:    1,
			BatchTimeout: "1s",
			WriteTimeout: "10s",
			RequiredAcks: -1,
			Compression:  "snappy",
		})
		if err != nil {
			return fmt.Errorf("applying kafka defaults: %w", err)
		}
	}
	return nil
}

// Validate reports configuration that cannot be used at startup.
func (c Config) Validate() error {
	var errs []error
	m := c.Config.Mail
	if m.Host != "" && m.Port == 0 {
		errs = append(errs, errors.New("config.mail.port is required when config.mail.host is set"))
	}
	if m.Port < 0 || m.Port > 65535 {
		errs = append(errs, fmt.Errorf("config.mail.port %d is out of range", m.Port))
	}
	if k := c.Audit.Kafka; k != nil && len(k.Brokers) == 0 {
		errs = append(errs, errors.New("audit.kafka.brokers must list at least one broker"))
	}
	return errors.Join(errs...)
}

// AuditLogEnabled reports whether delivery events are written to the log.
func (c Config) AuditLogEnabled() bool {
	return c.Audit.Log == nil || *c.Audit.Log
}
