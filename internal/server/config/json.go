package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/flagx"
	"github.com/dmitrijs2005/ingestkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. Pointer fields distinguish "absent" from zero values so a partial
// file does not clobber defaults.
type JsonConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http"`
	EndpointAddrGRPC *string `json:"endpoint_addr_grpc"`
	DatabaseDSN      *string `json:"database_dsn"`
	SecretKey        *string `json:"secret_key"`
	WorkerToken      *string `json:"worker_token"`
	MigrateOnStart   *bool   `json:"migrate_on_start"`

	LogLevel   *string `json:"log_level"`
	LogBackend *string `json:"log_backend"`

	S3AccessKey    *string         `json:"s3_access_key"`
	S3SecretKey    *string         `json:"s3_secret_key"`
	S3Bucket       *string         `json:"s3_bucket"`
	S3Region       *string         `json:"s3_region"`
	S3BaseEndpoint *string         `json:"s3_base_endpoint"`
	PresignTTL     *timex.Duration `json:"presign_ttl"`

	QueueBackend *string  `json:"queue_backend"`
	KafkaBrokers []string `json:"kafka_brokers"`
	KafkaTopic   *string  `json:"kafka_topic"`
	RabbitURL    *string  `json:"rabbitmq_url"`
	RabbitQueue  *string  `json:"rabbitmq_queue"`
	RedisURL     *string  `json:"redis_url"`
	RedisStream  *string  `json:"redis_stream"`

	ReaperInterval   *timex.Duration `json:"reaper_interval"`
	ReaperBatchSize  *int            `json:"reaper_batch_size"`
	ReaperMinAge     *timex.Duration `json:"reaper_min_age"`
	ReaperMaxRetries *uint64         `json:"reaper_max_retries"`
	ReaperBackoff    *timex.Duration `json:"reaper_backoff"`
	ReaperMaxBackoff *timex.Duration `json:"reaper_max_backoff"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.WorkerToken, c.WorkerToken)
	if c.MigrateOnStart != nil {
		config.MigrateOnStart = *c.MigrateOnStart
	}

	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)

	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.PresignTTL, c.PresignTTL)

	setString(&config.QueueBackend, c.QueueBackend)
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.RabbitURL, c.RabbitURL)
	setString(&config.RabbitQueue, c.RabbitQueue)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.RedisStream, c.RedisStream)

	setDuration(&config.ReaperInterval, c.ReaperInterval)
	if c.ReaperBatchSize != nil {
		config.ReaperBatchSize = *c.ReaperBatchSize
	}
	setDuration(&config.ReaperMinAge, c.ReaperMinAge)
	if c.ReaperMaxRetries != nil {
		config.ReaperMaxRetries = *c.ReaperMaxRetries
	}
	setDuration(&config.ReaperBackoff, c.ReaperBackoff)
	setDuration(&config.ReaperMaxBackoff, c.ReaperMaxBackoff)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
