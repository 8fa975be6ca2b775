package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds secrets and overrides read from the environment.
type Env struct {
	AliyunAccessKeyID     string `env:"ALIYUN_ACCESS_KEY_ID"`
	AliyunAccessKeySecret string `env:"ALIYUN_ACCESS_KEY_SECRET"`
	AliyunAppKey          string `env:"ALIYUN_TTS_APP_KEY"`
	Token                 string `env:"DICTYPE_TOKEN"`
	RemoteURL             string `env:"DICTYPE_REMOTE_URL"`
	Debug                 bool   `env:"DICTYPE_DEBUG"`
}

// HasAliyun reports whether all Aliyun credentials are set.
func (e Env) HasAliyun() bool {
	return e.AliyunAccessKeyID != "" && e.AliyunAccessKeySecret != "" && e.AliyunAppKey != ""
}

// LoadEnv parses the environment.
func LoadEnv() (Env, error) {
	cfg, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
