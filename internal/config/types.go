package config

// Config is the non-secret configuration shared by all binaries.
type Config struct {
	API       APIConfig       `json:"api"`
	Connector ConnectorConfig `json:"connector"`
}

// Secrets are read from an ejson file and the environment.
type Secrets struct {
	// ConnectorToken seeds the export service's bearer token for the relay.
	ConnectorToken string `json:"connectorToken" env:"CONNECTOR_TOKEN"`

	// GeminiAPIKey enables ledger suggestions through the Gemini API.
	GeminiAPIKey string `json:"geminiApiKey" env:"GEMINI_API_KEY"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Export service
///////////////////////////////////////////////////////////////////////////////////////

type APIConfig struct {
	Port     string `json:"port" env:"PORT"`
	LogLevel string `json:"logLevel" env:"LOG_LEVEL"`

	// CORSOrigin is the browser origin allowed to call the API. Empty
	// disables CORS.
	CORSOrigin string `json:"corsOrigin" env:"CORS_ORIGIN"`

	// ConnectorURL is the tunnel address of the desktop connector.
	ConnectorURL string `json:"connectorUrl" env:"CONNECTOR_URL"`

	// ProbeSchedule is a cron spec for the background connector status check.
	// ProbeOff disables the probe (quote it in YAML); empty takes the default.
	ProbeSchedule string `json:"probeSchedule" env:"CONNECTOR_PROBE_SCHEDULE"`

	Archive  ArchiveConfig  `json:"archive"`
	BigQuery BigQueryConfig `json:"bigquery"`
	Suggest  SuggestConfig  `json:"suggest"`
	Jobs     JobsConfig     `json:"jobs"`
}

// ProbeOff is the ProbeSchedule value that disables the connector probe.
const ProbeOff = "off"

// ProbeEnabled reports whether the scheduled connector probe should run.
func (c APIConfig) ProbeEnabled() bool {
	return c.ProbeSchedule != "" && c.ProbeSchedule != ProbeOff
}

type ArchiveConfig struct {
	// Bucket receives a copy of every rendered document. Empty disables archiving.
	Bucket string `json:"bucket" env:"GCS_BUCKET"`
	Prefix string `json:"prefix" env:"GCS_PREFIX"`
}

type BigQueryConfig struct {
	ProjectID string `json:"projectId" env:"BQ_PROJECT_ID"`
	Dataset   string `json:"dataset" env:"BQ_DATASET"`
	Table     string `json:"table" env:"BQ_EXPORTS_TABLE"`
}

// Enabled reports whether export auditing is configured.
func (c BigQueryConfig) Enabled() bool {
	return c.ProjectID != "" && c.Dataset != ""
}

type SuggestConfig struct {
	Model string `json:"model" env:"GEMINI_MODEL"`
}

type JobsConfig struct {
	Workers    int `json:"workers" env:"JOB_WORKERS"`
	BufferSize int `json:"bufferSize" env:"JOB_BUFFER_SIZE"`
	MaxRetries int `json:"maxRetries" env:"JOB_MAX_RETRIES"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Connector
///////////////////////////////////////////////////////////////////////////////////////

type ConnectorConfig struct {
	Host     string `json:"host" env:"CONNECTOR_HOST"`
	Port     int    `json:"port" env:"CONNECTOR_PORT"`
	LogLevel string `json:"logLevel" env:"CONNECTOR_LOG_LEVEL"`

	// CloudflaredPath is the tunnel binary; a bare name is looked up in $PATH.
	CloudflaredPath string `json:"cloudflaredPath" env:"CLOUDFLARED_PATH"`

	// ConfigDir holds the encrypted token and its key.
	ConfigDir string `json:"configDir" env:"CONNECTOR_CONFIG_DIR"`
}

// Defaults returns the values used for anything left unset.
func Defaults() Config {
	return Config{
		API: APIConfig{
			Port:          "8080",
			LogLevel:      "info",
			ProbeSchedule: "@every 1m",
			Archive:       ArchiveConfig{Prefix: "exports"},
			BigQuery:      BigQueryConfig{Table: "exports"},
			Suggest:       SuggestConfig{Model: "gemini-2.5-flash"},
			Jobs:          JobsConfig{Workers: 2, BufferSize: 100, MaxRetries: 3},
		},
		Connector: ConnectorConfig{
			Host:            "127.0.0.1",
			Port:            5001,
			LogLevel:        "info",
			CloudflaredPath: "cloudflared",
			ConfigDir:       ".",
		},
	}
}
