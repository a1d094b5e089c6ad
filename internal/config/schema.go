package config

// Config holds inkwell configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Database DatabaseCfg `mapstructure:"database" yaml:"database"`
	Queue    QueueCfg    `mapstructure:"queue" yaml:"queue"`
	OpenAI   OpenAICfg   `mapstructure:"openai" yaml:"openai"`
	Raster   RasterCfg   `mapstructure:"raster" yaml:"raster"`
	Typeset  TypesetCfg  `mapstructure:"typeset" yaml:"typeset"`
	Metrics  MetricsCfg  `mapstructure:"metrics" yaml:"metrics"`
	Pipeline PipelineCfg `mapstructure:"pipeline" yaml:"pipeline"`
}

// DatabaseCfg configures the job database.
type DatabaseCfg struct {
	// URL is a postgres connection string (supports ${ENV_VAR} syntax).
	URL string `mapstructure:"url" yaml:"url"`
}

// QueueCfg configures task dispatch.
type QueueCfg struct {
	Mode    string `mapstructure:"mode" yaml:"mode"`         // "local" or "nats"
	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"` // only for mode "nats"
	Buffer  int    `mapstructure:"buffer" yaml:"buffer"`     // local queue capacity
	Workers int    `mapstructure:"workers" yaml:"workers"`   // concurrent task executors
}

// OpenAICfg configures the transcription and enhancement clients.
type OpenAICfg struct {
	APIKey          string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	TranscribeModel string `mapstructure:"transcribe_model" yaml:"transcribe_model"`
	EnhanceModel    string `mapstructure:"enhance_model" yaml:"enhance_model"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries      int    `mapstructure:"max_retries" yaml:"max_retries"`
	EnhanceEnabled  bool   `mapstructure:"enhance_enabled" yaml:"enhance_enabled"`
}

// RasterCfg configures page rasterization.
type RasterCfg struct {
	DPI     int `mapstructure:"dpi" yaml:"dpi"`
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// TypesetCfg configures final document compilation.
type TypesetCfg struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// MetricsCfg configures the Prometheus endpoint.
type MetricsCfg struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// PipelineCfg configures the stage workers.
type PipelineCfg struct {
	// UploadWorkers bounds concurrent page uploads and downloads.
	UploadWorkers int `mapstructure:"upload_workers" yaml:"upload_workers"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseCfg{
			URL: "${INKWELL_DATABASE_URL}",
		},
		Queue: QueueCfg{
			Mode:    "local",
			NATSURL: "nats://127.0.0.1:4222",
			Buffer:  64,
			Workers: 2,
		},
		OpenAI: OpenAICfg{
			APIKey:          "${OPENAI_API_KEY}",
			TranscribeModel: "gpt-4o",
			EnhanceModel:    "gpt-image-1",
			TimeoutSeconds:  120,
			MaxRetries:      3,
			EnhanceEnabled:  false,
		},
		Raster: RasterCfg{
			DPI:     300,
			Workers: 4,
		},
		Typeset: TypesetCfg{
			TimeoutSeconds: 120,
		},
		Metrics: MetricsCfg{
			Enabled: true,
			Addr:    "127.0.0.1:9464",
		},
		Pipeline: PipelineCfg{
			UploadWorkers: 4,
		},
	}
}
