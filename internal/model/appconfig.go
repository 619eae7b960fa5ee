package model

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// AppConfig holds service-wide preferences and the defaults applied to new runs.
type AppConfig struct {
	// Service
	ServerAddr     string  `yaml:"server_addr" json:"server_addr" validate:"required"`
	LogLevel       string  `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string  `yaml:"log_format" json:"log_format" validate:"oneof=auto text json"`
	DataDir        string  `yaml:"data_dir" json:"data_dir"`
	ArchiveEnabled bool    `yaml:"archive_enabled" json:"archive_enabled"` // Persist finished tasks under DataDir
	TracingEnabled bool    `yaml:"tracing_enabled" json:"tracing_enabled"`
	SubmitRate     float64 `yaml:"submit_rate" json:"submit_rate" validate:"gte=0"` // Submissions per second, 0 = unlimited
	SubmitBurst    int     `yaml:"submit_burst" json:"submit_burst" validate:"gte=0"`
	MaxConcurrent  int     `yaml:"max_concurrent_tasks" json:"max_concurrent_tasks" validate:"gte=0"` // Running tasks at once, 0 = unlimited

	// Packing defaults
	DefaultAlgorithm      Algorithm `yaml:"default_algorithm" json:"default_algorithm" validate:"oneof=genetic greedy"`
	DefaultPopulationSize int       `yaml:"default_population_size" json:"default_population_size" validate:"gte=2"`
	DefaultGenerations    int       `yaml:"default_generations" json:"default_generations" validate:"gte=1"`
	Workers               int       `yaml:"workers" json:"workers" validate:"gte=0"`
}

// DefaultAppConfig returns an AppConfig populated with sensible defaults
// matching the values from DefaultSettings().
func DefaultAppConfig() AppConfig {
	defaults := DefaultSettings()
	return AppConfig{
		ServerAddr:            ":5000",
		LogLevel:              "info",
		LogFormat:             "auto",
		SubmitRate:            5,
		SubmitBurst:           10,
		MaxConcurrent:         4,
		DefaultAlgorithm:      defaults.Algorithm,
		DefaultPopulationSize: defaults.PopulationSize,
		DefaultGenerations:    defaults.Generations,
		Workers:               defaults.Workers,
	}
}

// Validate checks the config against its field constraints.
func (c AppConfig) Validate() error {
	return validate.Struct(c)
}

// ApplyToSettings copies the packing defaults into a PackSettings struct.
func (c AppConfig) ApplyToSettings(s *PackSettings) {
	s.Algorithm = c.DefaultAlgorithm
	s.PopulationSize = c.DefaultPopulationSize
	s.Generations = c.DefaultGenerations
	s.Workers = c.Workers
}
