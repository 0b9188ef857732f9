package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values
type Config struct {
	AppEnv          string
	AppPort         string
	ShutdownTimeout time.Duration

	// MongoDB
	MongoURI string
	MongoDB  string

	// Redis
	RedisAddr string
	RedisPwd  string
	RedisDB   int

	// Kafka
	KafkaBrokers  []string
	KafkaTopicIn  string
	KafkaTopicOut string
	KafkaGroupID  string

	// JWT
	JWTAlg           string
	JWTSecret        string
	JWTPublicKeyPath string

	// S3 object storage (ephemeral message assets)
	S3Region string
	S3Bucket string

	// Rate limiting
	MsgRatePerSec int
}

// Load reads configuration from config.yaml or environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config.yaml: %w", err)
	}

	cfg := &Config{
		AppEnv:           viper.GetString("APP_ENV"),
		AppPort:          viper.GetString("APP_PORT"),
		ShutdownTimeout:  viper.GetDuration("SHUTDOWN_TIMEOUT") * time.Second,
		MongoURI:         viper.GetString("MONGO_URI"),
		MongoDB:          viper.GetString("MONGO_DB"),
		RedisAddr:        viper.GetString("REDIS_ADDR"),
		RedisPwd:         viper.GetString("REDIS_PASSWORD"),
		RedisDB:          viper.GetInt("REDIS_DB"),
		KafkaBrokers:     viper.GetStringSlice("KAFKA_BROKERS"),
		KafkaTopicIn:     viper.GetString("KAFKA_TOPIC_IN"),
		KafkaTopicOut:    viper.GetString("KAFKA_TOPIC_OUT"),
		KafkaGroupID:     viper.GetString("KAFKA_GROUP_ID"),
		JWTAlg:           viper.GetString("JWT_ALG"),
		JWTSecret:        viper.GetString("JWT_SECRET"),
		JWTPublicKeyPath: viper.GetString("JWT_PUBLIC_KEY_PATH"),
		S3Region:         viper.GetString("S3_REGION"),
		S3Bucket:         viper.GetString("S3_BUCKET"),
		MsgRatePerSec:    viper.GetInt("MSG_RATE_PER_SEC"),
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}
	if cfg.MsgRatePerSec <= 0 {
		cfg.MsgRatePerSec = 20
	}
	return cfg, nil
}
