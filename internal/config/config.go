// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	SiteURL                 string `yaml:"site_url"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	SessionToken            `yaml:"session_token"`
	IdentityProvider        `yaml:"identity_provider"`
	MercadoPago             `yaml:"mercadopago"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	Tolerances              `yaml:"tolerances"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// SessionToken структура для разбора токенов сессий провайдера идентификации
type SessionToken struct {
	SessionSecretKey string        `yaml:"session_secret_key"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

// IdentityProvider структура для настройки клиента провайдера идентификации
type IdentityProvider struct {
	IdentityURL     string        `yaml:"identity_url"`
	IdentityAPIKey  string        `yaml:"identity_api_key"`
	IdentityTimeout time.Duration `yaml:"identity_timeout" env-default:"5s"`
}

// MercadoPago структура для настройки клиента платёжного провайдера
type MercadoPago struct {
	MPBaseURL     string `yaml:"mp_base_url"`
	MPAccessToken string `yaml:"mp_access_token"`
}

// RabbitMQ структура для настройки подключения к rabbitmq
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay"`
	RabbitMQPrefetch   int           `yaml:"rabbitmq_prefetch" env-default:"10"`
}

// SMTP структура для настройки почтового транспорта
type SMTP struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort string `yaml:"smtp_port"`
	SMTPUser string `yaml:"smtp_user"`
	SMTPPass string `yaml:"smtp_pass"`
}

// Tolerances структура с допусками сторожевых таймеров и таймера неактивности.
// Сверка платежа легитимно длится дольше обычной загрузки,
// так как бекенд ходит к третьей стороне.
type Tolerances struct {
	LoadingTolerance    time.Duration `yaml:"loading_tolerance" env-default:"8s"`
	VerifyingTolerance  time.Duration `yaml:"verifying_tolerance" env-default:"12s"`
	InactivityTolerance time.Duration `yaml:"inactivity_tolerance" env-default:"2m"`
	NoticeTTL           time.Duration `yaml:"notice_ttl" env-default:"30s"`
}

// MustLoad функция для загрузки конфига, путь к файлу берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
