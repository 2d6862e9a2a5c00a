package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture     CaptureConfig     `yaml:"capture"`
	Transport   TransportConfig   `yaml:"transport"`
	Flow        FlowConfig        `yaml:"flow"`
	Classify    ClassifyConfig    `yaml:"classify"`
	Threat      ThreatConfig      `yaml:"threat"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Outputs     OutputsConfig     `yaml:"outputs"`
	Audit       AuditConfig       `yaml:"audit"`
	Notify      NotifyConfig      `yaml:"notify"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CaptureConfig selects and tunes the packet source.
type CaptureConfig struct {
	Mode        string        `yaml:"mode"` // live|nats|pcap
	Interface   string        `yaml:"interface"`
	BPF         string        `yaml:"bpf"`
	SnapshotLen int32         `yaml:"snapshot_len"`
	Promiscuous bool          `yaml:"promiscuous"`
	BufferSize  int           `yaml:"buffer_size"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	PcapPath    string        `yaml:"pcap_path"`
}

// TransportConfig holds the NATS endpoints shared by sensor and engine.
type TransportConfig struct {
	NATSURL       string `yaml:"nats_url"`
	PacketSubject string `yaml:"packet_subject"`
	AlertSubject  string `yaml:"alert_subject"`
}

// FlowConfig tunes flow aggregation windows and memory bounds.
type FlowConfig struct {
	Window        time.Duration `yaml:"window"`
	PacketCap     uint64        `yaml:"packet_cap"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	NumShards     uint32        `yaml:"num_shards"`
	OutputBuffer  int           `yaml:"output_buffer"`
}

// ClassifyConfig locates the trained model and sizes the worker pool.
type ClassifyConfig struct {
	ModelPath string `yaml:"model_path"`
	Workers   int    `yaml:"workers"`
}

// ThreatConfig tunes the per-source escalation state machine.
type ThreatConfig struct {
	Shards                uint32        `yaml:"shards"`
	SuspicionThreshold    int           `yaml:"suspicion_threshold"`
	ConfirmationThreshold int           `yaml:"confirmation_threshold"`
	HighConfidence        float64       `yaml:"high_confidence"`
	Cooldown              time.Duration `yaml:"cooldown"`
	Retention             time.Duration `yaml:"retention"`
	DecayHalfLife         time.Duration `yaml:"decay_half_life"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`
	TransitionBuffer      int           `yaml:"transition_buffer"`
}

// EnforcementConfig controls the optional block-source collaborator.
type EnforcementConfig struct {
	Enabled bool               `yaml:"enabled"`
	Mode    string             `yaml:"mode"` // redis|http
	Timeout time.Duration      `yaml:"timeout"`
	Redis   RedisConfig        `yaml:"redis"`
	HTTP    HTTPEnforcerConfig `yaml:"http"`
}

// RedisConfig configures the Redis blocklist enforcer.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	BlocklistKey   string `yaml:"blocklist_key"`
	PublishChannel string `yaml:"publish_channel"`
}

// HTTPEnforcerConfig configures the HTTP block-directive enforcer.
type HTTPEnforcerConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// OutputsConfig enables the alert record subscribers.
type OutputsConfig struct {
	ClickHouse   ClickHouseConfig `yaml:"clickhouse"`
	NATS         NATSOutputConfig `yaml:"nats"`
	File         FileOutputConfig `yaml:"file"`
	MailboxSize  int              `yaml:"mailbox_size"`
	RecentAlerts int              `yaml:"recent_alerts"`
}

// ClickHouseConfig configures the persistence collaborator.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSOutputConfig enables live alert broadcast.
type NATSOutputConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FileOutputConfig enables the local JSONL alert sink.
type FileOutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuditConfig tunes the hash-chained audit recorder.
type AuditConfig struct {
	JournalPath  string        `yaml:"journal_path"`
	QueueSize    int           `yaml:"queue_size"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// NotifyConfig controls email delivery of high-severity alerts.
type NotifyConfig struct {
	Enabled     bool       `yaml:"enabled"`
	MinSeverity string     `yaml:"min_severity"`
	SMTP        SMTPConfig `yaml:"smtp"`
	AI          AIConfig   `yaml:"ai"`
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig configures the optional triage analysis of notified alerts.
type AIConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig configures the operator HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// InvalidValueError reports a config field set to an unsupported value.
type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s", e.Value, e.Field)
}

// LoadConfig reads the configuration from a YAML file, applies defaults and
// returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in zero-valued fields with sane defaults.
func (c *Config) ApplyDefaults() {
	if c.Capture.Mode == "" {
		c.Capture.Mode = "live"
	}
	if c.Capture.SnapshotLen <= 0 {
		c.Capture.SnapshotLen = 1600
	}
	if c.Capture.BufferSize <= 0 {
		c.Capture.BufferSize = 8192
	}
	if c.Capture.MinBackoff <= 0 {
		c.Capture.MinBackoff = time.Second
	}
	if c.Capture.MaxBackoff <= 0 {
		c.Capture.MaxBackoff = 30 * time.Second
	}

	if c.Transport.NATSURL == "" {
		c.Transport.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Transport.PacketSubject == "" {
		c.Transport.PacketSubject = "netsentry.packets"
	}
	if c.Transport.AlertSubject == "" {
		c.Transport.AlertSubject = "netsentry.alerts"
	}

	if c.Flow.Window <= 0 {
		c.Flow.Window = 10 * time.Second
	}
	if c.Flow.PacketCap == 0 {
		c.Flow.PacketCap = 10000
	}
	if c.Flow.SweepInterval <= 0 {
		c.Flow.SweepInterval = time.Second
	}
	if c.Flow.NumShards == 0 || c.Flow.NumShards >= 32768 {
		c.Flow.NumShards = 256
	}
	if c.Flow.OutputBuffer <= 0 {
		c.Flow.OutputBuffer = 4096
	}

	if c.Classify.Workers <= 0 {
		c.Classify.Workers = 4
	}

	if c.Threat.Shards == 0 {
		c.Threat.Shards = 16
	}
	if c.Threat.SuspicionThreshold <= 0 {
		c.Threat.SuspicionThreshold = 5
	}
	if c.Threat.ConfirmationThreshold <= 0 {
		c.Threat.ConfirmationThreshold = 12
	}
	if c.Threat.HighConfidence <= 0 {
		c.Threat.HighConfidence = 0.9
	}
	if c.Threat.Cooldown <= 0 {
		c.Threat.Cooldown = 5 * time.Minute
	}
	if c.Threat.Retention <= 0 {
		c.Threat.Retention = 30 * time.Minute
	}
	if c.Threat.DecayHalfLife <= 0 {
		c.Threat.DecayHalfLife = 2 * time.Minute
	}
	if c.Threat.SweepInterval <= 0 {
		c.Threat.SweepInterval = 30 * time.Second
	}
	if c.Threat.TransitionBuffer <= 0 {
		c.Threat.TransitionBuffer = 1024
	}

	if c.Enforcement.Timeout <= 0 {
		c.Enforcement.Timeout = 3 * time.Second
	}
	if c.Enforcement.Redis.Addr == "" {
		c.Enforcement.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Enforcement.Redis.BlocklistKey == "" {
		c.Enforcement.Redis.BlocklistKey = "netsentry:blocklist"
	}
	if c.Enforcement.Redis.PublishChannel == "" {
		c.Enforcement.Redis.PublishChannel = "netsentry:blocks"
	}

	if c.Outputs.MailboxSize <= 0 {
		c.Outputs.MailboxSize = 1024
	}
	if c.Outputs.RecentAlerts <= 0 {
		c.Outputs.RecentAlerts = 100
	}
	if c.Outputs.ClickHouse.Port == 0 {
		c.Outputs.ClickHouse.Port = 9000
	}
	if c.Outputs.ClickHouse.Database == "" {
		c.Outputs.ClickHouse.Database = "netsentry"
	}
	if c.Outputs.File.Path == "" {
		c.Outputs.File.Path = "output/alerts.jsonl"
	}

	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 1024
	}
	if c.Audit.RetryBackoff <= 0 {
		c.Audit.RetryBackoff = time.Second
	}

	if c.Notify.MinSeverity == "" {
		c.Notify.MinSeverity = "high"
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
	if c.Notify.AI.Model == "" {
		c.Notify.AI.Model = "gpt-4o-mini"
	}
	if c.Notify.AI.Timeout <= 0 {
		c.Notify.AI.Timeout = 30 * time.Second
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
