package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	LLM        LLMConfig
	Image      ImageConfig
	Video      VideoConfig
	Speech     SpeechConfig
	Compositor CompositorConfig
	Scorer     ScorerConfig
	Pipeline   PipelineConfig
	R2         R2Config
	Zitadel    ZitadelConfig
	Gateway    GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	AdsPerHour    int
	BatchPerHour  int
	UploadPerHour int
	ExportPerHour int
}

// LLMConfig holds the chat-completion provider settings (script and scene
// planning).
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ImageConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type VideoConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type SpeechConfig struct {
	APIKey  string
	BaseURL string
}

// CompositorConfig points at the rendering microservice that concatenates
// clips and muxes audio.
type CompositorConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

// ScorerConfig points at the vision model used for consistency scoring.
// An empty APIKey disables gating.
type ScorerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// PipelineConfig tunes the generation pipeline
type PipelineConfig struct {
	MaxRetries          int
	ApprovalTimeoutSec  int
	StoryboardThreshold float64
	MaxRegenAttempts    int
	MaxClipSeconds      float64
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("LLM_API_KEY")
	readSecret("IMAGE_API_KEY")
	readSecret("VIDEO_API_KEY")
	readSecret("SPEECH_API_KEY")
	readSecret("SCORER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("image.api_key", "IMAGE_API_KEY")
	_ = viper.BindEnv("image.base_url", "IMAGE_BASE_URL")
	_ = viper.BindEnv("image.model", "IMAGE_MODEL")
	_ = viper.BindEnv("video.api_key", "VIDEO_API_KEY")
	_ = viper.BindEnv("video.base_url", "VIDEO_BASE_URL")
	_ = viper.BindEnv("video.model", "VIDEO_MODEL")
	_ = viper.BindEnv("speech.api_key", "SPEECH_API_KEY")
	_ = viper.BindEnv("speech.base_url", "SPEECH_BASE_URL")
	_ = viper.BindEnv("compositor.service_url", "COMPOSITOR_SERVICE_URL")
	_ = viper.BindEnv("compositor.timeout", "COMPOSITOR_TIMEOUT")
	_ = viper.BindEnv("scorer.api_key", "SCORER_API_KEY")
	_ = viper.BindEnv("scorer.base_url", "SCORER_BASE_URL")
	_ = viper.BindEnv("scorer.model", "SCORER_MODEL")
	_ = viper.BindEnv("pipeline.max_retries", "PIPELINE_MAX_RETRIES")
	_ = viper.BindEnv("pipeline.approval_timeout", "PIPELINE_APPROVAL_TIMEOUT")
	_ = viper.BindEnv("pipeline.storyboard_threshold", "PIPELINE_STORYBOARD_THRESHOLD")
	_ = viper.BindEnv("pipeline.max_regen_attempts", "PIPELINE_MAX_REGEN_ATTEMPTS")
	_ = viper.BindEnv("pipeline.max_clip_seconds", "PIPELINE_MAX_CLIP_SECONDS")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.ads_per_hour", 10)
	viper.SetDefault("ratelimit.batch_per_hour", 3)
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("ratelimit.export_per_hour", 20)

	// LLM defaults
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")

	// Image and video model defaults
	viper.SetDefault("image.base_url", "https://api.adforge-media.dev")
	viper.SetDefault("image.model", "flux-pro-1.1")
	viper.SetDefault("video.base_url", "https://api.adforge-media.dev")
	viper.SetDefault("video.model", "kling-v1.6")

	// Speech defaults
	viper.SetDefault("speech.base_url", "https://api.elevenlabs.io")

	// Compositor service defaults
	viper.SetDefault("compositor.service_url", "http://localhost:8094")
	viper.SetDefault("compositor.timeout", 300)

	// Scorer defaults
	viper.SetDefault("scorer.base_url", "https://api.adforge-media.dev")
	viper.SetDefault("scorer.model", "qwen2.5-vl-72b")

	// Pipeline defaults
	viper.SetDefault("pipeline.max_retries", 2)
	viper.SetDefault("pipeline.approval_timeout", 600)
	viper.SetDefault("pipeline.storyboard_threshold", 0.75)
	viper.SetDefault("pipeline.max_regen_attempts", 3)
	viper.SetDefault("pipeline.max_clip_seconds", 5)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			AdsPerHour:    viper.GetInt("ratelimit.ads_per_hour"),
			BatchPerHour:  viper.GetInt("ratelimit.batch_per_hour"),
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
			ExportPerHour: viper.GetInt("ratelimit.export_per_hour"),
		},
		LLM: LLMConfig{
			APIKey:  viper.GetString("llm.api_key"),
			BaseURL: viper.GetString("llm.base_url"),
			Model:   viper.GetString("llm.model"),
		},
		Image: ImageConfig{
			APIKey:  viper.GetString("image.api_key"),
			BaseURL: viper.GetString("image.base_url"),
			Model:   viper.GetString("image.model"),
		},
		Video: VideoConfig{
			APIKey:  viper.GetString("video.api_key"),
			BaseURL: viper.GetString("video.base_url"),
			Model:   viper.GetString("video.model"),
		},
		Speech: SpeechConfig{
			APIKey:  viper.GetString("speech.api_key"),
			BaseURL: viper.GetString("speech.base_url"),
		},
		Compositor: CompositorConfig{
			ServiceURL: viper.GetString("compositor.service_url"),
			Timeout:    viper.GetInt("compositor.timeout"),
		},
		Scorer: ScorerConfig{
			APIKey:  viper.GetString("scorer.api_key"),
			BaseURL: viper.GetString("scorer.base_url"),
			Model:   viper.GetString("scorer.model"),
		},
		Pipeline: PipelineConfig{
			MaxRetries:          viper.GetInt("pipeline.max_retries"),
			ApprovalTimeoutSec:  viper.GetInt("pipeline.approval_timeout"),
			StoryboardThreshold: viper.GetFloat64("pipeline.storyboard_threshold"),
			MaxRegenAttempts:    viper.GetInt("pipeline.max_regen_attempts"),
			MaxClipSeconds:      viper.GetFloat64("pipeline.max_clip_seconds"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
