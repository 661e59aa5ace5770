package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig tunes the scheduler worker. All fields have sane defaults so
// the YAML file is optional.
type WorkerConfig struct {
	Workers             int `yaml:"workers"`
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
	JobTimeoutSeconds   int `yaml:"jobTimeoutSeconds"`
	QueueSize           int `yaml:"queueSize"`
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Workers:             4,
		PollIntervalSeconds: 30,
		JobTimeoutSeconds:   60,
		QueueSize:           128,
	}
}

func LoadWorkerConfig(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkerConfig{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorkerConfig{}, err
	}
	if cfg.Workers <= 0 || cfg.PollIntervalSeconds <= 0 || cfg.JobTimeoutSeconds <= 0 || cfg.QueueSize <= 0 {
		return WorkerConfig{}, fmt.Errorf("worker config values must be positive")
	}
	return cfg, nil
}

func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c WorkerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}
