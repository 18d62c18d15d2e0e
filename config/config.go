package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database" validate:"required"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	VesselTrack VesselTrackConfig `yaml:"vesseltrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required,min=1,max=65535"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	EtaCheckedTopicName  string `yaml:"eta_checked_topic_name"`
	ChatRepliesTopicName string `yaml:"chat_replies_topic_name"`
	ConsumerGroup        string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CheckScheduleConfig struct {
	At     string   `yaml:"at" validate:"required"`
	Days   []string `yaml:"days,omitempty"`
	Active bool     `yaml:"active"`
}

type VesselTrackConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	SwaggerPath string `yaml:"swagger_path"`

	// Checker: минутный тик планировщика, размер партии, вежливая пауза
	// между судами и лимит обращений к одному терминалу в минуту.
	CheckerTickSeconds       int `yaml:"checker_tick_seconds"`
	CheckerBatchLimit        int `yaml:"checker_batch_limit"`
	CheckerDelaySeconds      int `yaml:"checker_delay_seconds"`
	CheckerRateLimitPerMinute int `yaml:"checker_rate_limit_per_minute"`

	CheckSchedules []CheckScheduleConfig `yaml:"check_schedules"`

	// Суточный цикл скрейпа: час запуска (UTC).
	IngestHourUTC int `yaml:"ingest_hour_utc"`

	ProgressRetentionHours int `yaml:"progress_retention_hours"`

	ChatRateLimitHours int `yaml:"chat_rate_limit_hours"`

	// Terminal lookup: "porthttp" ходит на live-шлюз, "schedstore" читает
	// кэш расписаний, иначе — локальный fake.
	TerminalLookupMode     string `yaml:"terminal_lookup_mode"`
	TerminalGatewayBaseURL string `yaml:"terminal_gateway_base_url"`
	TerminalGatewayAPIKey  string `yaml:"terminal_gateway_api_key"`
	LookupCacheTTLSeconds  int    `yaml:"lookup_cache_ttl_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
