package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/madpsy/ldpcsim/ldpc"
)

// Config represents the top-level simulation run configuration, loaded
// once from a YAML file and validated before a single frame is
// simulated. The nested-struct-per-concern layout follows the teacher's
// own Config shape.
type Config struct {
	CodePath   string        `yaml:"code_path"`
	OutputPath string        `yaml:"output_path"`
	Channel    string        `yaml:"channel"`
	Sweep      SweepConfig   `yaml:"sweep"`
	Workers    int           `yaml:"workers"`
	Seed       int64         `yaml:"seed"`
	Decoder    DecoderConfig `yaml:"decoder"`
	Stop       StopConfig    `yaml:"stop"`
	Results    ResultsConfig `yaml:"results"`
	Prometheus PromConfig    `yaml:"prometheus"`
	MQTT       MQTTRunConfig `yaml:"mqtt"`
	WebSocket  WSConfig      `yaml:"websocket"`
	MCP        MCPRunConfig  `yaml:"mcp"`
}

// SweepConfig is the arithmetic sweep triple over the channel parameter.
type SweepConfig struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`
}

// DecoderConfig configures the belief-propagation decoder.
type DecoderConfig struct {
	MaxIterations    int     `yaml:"max_iterations"`
	EarlyTermination bool    `yaml:"early_termination"`
	Algorithm        string  `yaml:"algorithm"`
	MinSumScale      float64 `yaml:"min_sum_scale"`
}

// StopConfig carries the two Monte-Carlo stop conditions.
type StopConfig struct {
	MinFEC    uint64 `yaml:"min_fec"`
	MaxFrames uint64 `yaml:"max_frames"`
}

// ResultsConfig controls the results file and its optional extras.
type ResultsConfig struct {
	LogFrameTime bool `yaml:"log_frame_time"`
	ArchiveGzip  bool `yaml:"archive_gzip"`
}

// PromConfig enables the Prometheus metrics endpoint.
type PromConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// MQTTRunConfig enables the optional MQTT results publisher.
type MQTTRunConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Topic           string `yaml:"topic"`
	PublishInterval int    `yaml:"publish_interval"`
}

// WSConfig enables the optional live progress WebSocket feed.
type WSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// MCPRunConfig enables the optional MCP control/status server.
type MCPRunConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoadConfig reads and parses a YAML configuration file, following the
// teacher's own LoadConfig: read the whole file, unmarshal, apply
// defaults, leave validation to the caller.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ldpc.IOErrorf(err, "reading config file %q", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ldpc.IOErrorf(err, "parsing config file %q", path)
	}

	if cfg.Decoder.MaxIterations == 0 {
		cfg.Decoder.MaxIterations = 50
	}
	if cfg.Decoder.Algorithm == "" {
		cfg.Decoder.Algorithm = "sum-product"
	}
	if cfg.Decoder.MinSumScale == 0 {
		cfg.Decoder.MinSumScale = 0.75
	}
	if cfg.Stop.MaxFrames == 0 {
		cfg.Stop.MaxFrames = 1_000_000
	}
	if cfg.Stop.MinFEC == 0 {
		cfg.Stop.MinFEC = 50
	}
	if cfg.MQTT.PublishInterval == 0 {
		cfg.MQTT.PublishInterval = 10
	}

	return &cfg, nil
}

// Validate enforces the ConfigError conditions: a known channel kind, a
// known decoder algorithm, a positive sweep step, start < stop, and
// positive iteration/frame/FEC bounds.
func (c *Config) Validate() error {
	if c.CodePath == "" {
		return ldpc.ConfigErrorf("code_path is required")
	}
	if c.OutputPath == "" {
		return ldpc.ConfigErrorf("output_path is required")
	}
	if _, err := ldpc.ParseChannelKind(c.Channel); err != nil {
		return err
	}
	if _, err := ldpc.ParseDecoderAlgorithm(c.Decoder.Algorithm); err != nil {
		return err
	}
	if c.Sweep.Step <= 0 {
		return ldpc.ConfigErrorf("sweep.step must be positive, got %v", c.Sweep.Step)
	}
	if c.Sweep.Stop <= c.Sweep.Start {
		return ldpc.ConfigErrorf("sweep.stop (%v) must be greater than sweep.start (%v)", c.Sweep.Stop, c.Sweep.Start)
	}
	if c.Workers < 0 {
		return ldpc.ConfigErrorf("workers must be >= 0 (0 = autodetect), got %d", c.Workers)
	}
	if c.Decoder.MaxIterations <= 0 {
		return ldpc.ConfigErrorf("decoder.max_iterations must be positive, got %d", c.Decoder.MaxIterations)
	}
	if c.Stop.MaxFrames < 1 {
		return ldpc.ConfigErrorf("stop.max_frames must be at least 1, got %d", c.Stop.MaxFrames)
	}
	if c.Stop.MinFEC < 1 {
		return ldpc.ConfigErrorf("stop.min_fec must be at least 1, got %d", c.Stop.MinFEC)
	}
	if c.Prometheus.Enabled && c.Prometheus.ListenAddr == "" {
		return fmt.Errorf("prometheus.listen_addr is required when prometheus.enabled is true")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enabled is true")
	}
	if c.WebSocket.Enabled && c.WebSocket.ListenAddr == "" {
		return fmt.Errorf("websocket.listen_addr is required when websocket.enabled is true")
	}
	if c.MCP.Enabled && c.MCP.ListenAddr == "" {
		return fmt.Errorf("mcp.listen_addr is required when mcp.enabled is true")
	}
	return nil
}
