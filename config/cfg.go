package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"cssdata/dataurl"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	InliningConfig struct {
		SizeLimit    int    `yaml:"size_limit" validate:"min=1"`
		Concurrency  int    `yaml:"concurrency" validate:"min=1,max=64"`
		ScanMode     string `yaml:"scan_mode" validate:"oneof=literal tokens"`
		VerifyImages bool   `yaml:"verify_images"`
	}

	FetchConfig struct {
		Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
		UserAgent     string        `yaml:"user_agent"`
		Authorization SecretString  `yaml:"authorization,omitempty"`
	}

	ServerConfig struct {
		Listen          string        `yaml:"listen" validate:"required,hostname_port"`
		Root            string        `yaml:"root" sanitize:"path_clean" validate:"required"`
		EnableParam     string        `yaml:"enable_param" validate:"required"`
		AlwaysEnabled   bool          `yaml:"always_enabled"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Inlining  InliningConfig `yaml:"inlining"`
		Fetch     FetchConfig    `yaml:"fetch"`
		Server    ServerConfig   `yaml:"server"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// Options converts configuration section to inliner options.
func (conf *InliningConfig) Options() dataurl.Options {
	return dataurl.Options{
		SizeLimit:    conf.SizeLimit,
		Concurrency:  conf.Concurrency,
		ScanMode:     dataurl.ScanMode(conf.ScanMode),
		VerifyImages: conf.VerifyImages,
	}
}

// Header returns headers to be sent with every remote request.
func (conf *FetchConfig) Header() http.Header {
	hdr := make(http.Header)
	if len(conf.UserAgent) > 0 {
		hdr.Set("User-Agent", conf.UserAgent)
	}
	if len(conf.Authorization) > 0 {
		hdr.Set("Authorization", string(conf.Authorization))
	}
	return hdr
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// only fields we defined are allowed, so no yaml.Unmarshal here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, fmt.Errorf("configuration sanitizing failed: %w", err)
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
