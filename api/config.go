package api

import "time"

type ServerConfig struct {
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Engine EngineConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	Events string
}

type AuthConfig struct {
	// PublicKey 為 base64 編碼的 ed25519 公鑰
	PublicKey string
}

type EngineConfig struct {
	SweepInterval time.Duration
	Extension     time.Duration
}
