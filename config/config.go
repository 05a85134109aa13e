package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Quota       Quota         `yaml:"quota"`
	Pipeline    Pipeline      `yaml:"pipeline"`
	OpenAI      OpenAI        `yaml:"openai"`
	Uploads     Uploads       `yaml:"uploads"`
	Auth        Auth          `yaml:"auth"`
}

type Auth struct {
	// Tokens maps pre-shared bearer tokens to user ids. A real deployment
	// swaps this for an external identity provider.
	Tokens map[string]string `yaml:"tokens"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type Quota struct {
	DailyLimit int `yaml:"daily_limit"`
}

type Pipeline struct {
	// DispatchMode is "inline" (supervised goroutines) or "amqp".
	DispatchMode          string        `yaml:"dispatch_mode"`
	SegmentThresholdBytes int64         `yaml:"segment_threshold_bytes"`
	MaxSegmentSeconds     float64       `yaml:"max_segment_seconds"`
	CallTimeout           time.Duration `yaml:"call_timeout"`
	TempDir               string        `yaml:"temp_dir"`
}

type OpenAI struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type Uploads struct {
	Dir          string `yaml:"dir"`
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
}

type RabbitMQ struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	Kind string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("quota.daily_limit", 5)
	viper.SetDefault("pipeline.dispatch_mode", "inline")
	viper.SetDefault("pipeline.segment_threshold_bytes", 25*1024*1024)
	viper.SetDefault("pipeline.max_segment_seconds", 900)
	viper.SetDefault("pipeline.call_timeout_seconds", 300)
	viper.SetDefault("pipeline.temp_dir", "temp")
	viper.SetDefault("uploads.dir", "uploads")
	viper.SetDefault("uploads.max_size_bytes", 200*1024*1024)
	viper.SetDefault("openai.model", "whisper-1")
	viper.SetDefault("server.workers", 4)
	viper.SetDefault("rabbitmq_kind", "direct")
	viper.SetDefault("server.port", "8080")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	var minioClient *minio.Client
	if viper.GetString("minio.url") != "" {
		minioClient, err = minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Quota: Quota{
			DailyLimit: viper.GetInt("quota.daily_limit"),
		},
		Pipeline: Pipeline{
			DispatchMode:          viper.GetString("pipeline.dispatch_mode"),
			SegmentThresholdBytes: viper.GetInt64("pipeline.segment_threshold_bytes"),
			MaxSegmentSeconds:     viper.GetFloat64("pipeline.max_segment_seconds"),
			CallTimeout:           time.Duration(viper.GetInt("pipeline.call_timeout_seconds")) * time.Second,
			TempDir:               viper.GetString("pipeline.temp_dir"),
		},
		OpenAI: OpenAI{
			APIKey: viper.GetString("openai.api_key"),
			Model:  viper.GetString("openai.model"),
		},
		Uploads: Uploads{
			Dir:          viper.GetString("uploads.dir"),
			MaxSizeBytes: viper.GetInt64("uploads.max_size_bytes"),
		},
		Auth: Auth{
			Tokens: viper.GetStringMapString("auth.tokens"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
