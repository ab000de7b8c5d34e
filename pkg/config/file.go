package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML scan profile. Zero values mean "not set";
// command-line flags that are explicitly given win over profile values.
//
//	concurrency: 20
//	timeout: 3s
//	dns:
//	  servers: [1.1.1.1, 8.8.8.8]
//	  proto: dot
//	  strategy: parallel
//	tls:
//	  port: 443
//	  connect_attempts: 2
type Profile struct {
	Concurrency  int    `yaml:"concurrency"`
	Timeout      string `yaml:"timeout"`
	RateLimit    int    `yaml:"rate"`
	ExtraRecords *bool  `yaml:"extra_records"`

	DNS struct {
		Servers  []string `yaml:"servers"`
		Proto    string   `yaml:"proto"`
		Strategy string   `yaml:"strategy"`
	} `yaml:"dns"`

	TLS struct {
		Port            int `yaml:"port"`
		ConnectAttempts int `yaml:"connect_attempts"`
	} `yaml:"tls"`

	Output struct {
		Path    string `yaml:"path"`
		Format  string `yaml:"format"`
		LogFile string `yaml:"logfile"`
	} `yaml:"output"`
}

// LoadProfile reads and decodes a YAML profile. Unknown keys are rejected so
// that typos do not silently fall back to defaults.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config profile: %w", err)
	}
	defer f.Close()

	var p Profile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config profile %s: %w", path, err)
	}

	if _, err := p.TimeoutDuration(); err != nil {
		return nil, err
	}
	return &p, nil
}

// TimeoutDuration parses the profile timeout. A missing value yields zero.
func (p *Profile) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q in config profile: %w", p.Timeout, err)
	}
	return d, nil
}
