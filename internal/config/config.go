// Package config loads offpos settings from YAML and validates them
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// DefaultPath is read when no --config flag is given.
const DefaultPath = "offpos.yaml"

// Environment variables that override secrets kept out of the file.
const (
	EnvBackendDSN = "OFFPOS_BACKEND_DSN"
	EnvAMQPURL    = "OFFPOS_AMQP_URL"
)

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Printer kinds.
const (
	PrinterNone = "none"
	PrinterLog  = "log"
	PrinterAMQP = "amqp"
)

type Config struct {
	Device    Device    `yaml:"device" json:"device"`
	Store     Store     `yaml:"store" json:"store"`
	Backend   Backend   `yaml:"backend" json:"backend"`
	Outbox    Outbox    `yaml:"outbox" json:"outbox"`
	Reconcile Reconcile `yaml:"reconcile" json:"reconcile"`
	Printing  Printing  `yaml:"printing" json:"printing"`
}

type Device struct {
	ID    string `yaml:"id" json:"id"`
	Staff string `yaml:"staff" json:"staff"`
}

type Store struct {
	Path string `yaml:"path" json:"path"`
}

type Backend struct {
	Kind      string        `yaml:"kind" json:"kind"`
	DSN       string        `yaml:"dsn" json:"dsn"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
}

type Outbox struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	DrainInterval time.Duration `yaml:"drain_interval" json:"drain_interval"`
}

type Reconcile struct {
	CompletedWindow time.Duration `yaml:"completed_window" json:"completed_window"`
	Interval        time.Duration `yaml:"interval" json:"interval"`
}

type Printing struct {
	Kind     string        `yaml:"kind" json:"kind"`
	URL      string        `yaml:"url" json:"url"`
	Exchange string        `yaml:"exchange" json:"exchange"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// Default returns the settings used for anything the file leaves out.
func Default() Config {
	return Config{
		Device: Device{ID: "device-1"},
		Store:  Store{Path: "offpos.db"},
		Backend: Backend{
			Kind:      BackendMemory,
			Timeout:   15 * time.Second,
			BatchSize: 100,
		},
		Outbox: Outbox{
			MaxRetries:    5,
			DrainInterval: 30 * time.Second,
		},
		Reconcile: Reconcile{
			CompletedWindow: 24 * time.Hour,
			Interval:        5 * time.Minute,
		},
		Printing: Printing{
			Kind:     PrinterLog,
			Exchange: "print_topic",
			Timeout:  10 * time.Second,
		},
	}
}

// Load reads path. A missing file at DefaultPath yields the defaults; a
// missing file anywhere else is an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
		data, err = nil, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv(EnvBackendDSN); v != "" {
		cfg.Backend.DSN = v
	}
	if v := os.Getenv(EnvAMQPURL); v != "" {
		cfg.Printing.URL = v
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
