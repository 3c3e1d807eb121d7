package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                string
	BackendURL          string
	BackendUsername     string
	BackendPassword     string
	DataDir             string
	StoreName           string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	DatabaseURL         string
	SyncIntervalSeconds int
	SettleDelaySeconds  int
	RetentionHours      int
	RequestTimeoutSecs  int
	ManagerPIN          string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	interval, err := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "30"))
	if err != nil || interval < 1 {
		interval = 30
	}
	settle, err := strconv.Atoi(getEnv("SETTLE_DELAY_SECONDS", "2"))
	if err != nil || settle < 0 {
		settle = 2
	}
	retention, err := strconv.Atoi(getEnv("SYNC_RETENTION_HOURS", "72"))
	if err != nil || retention < 1 {
		retention = 72
	}
	timeout, err := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "10"))
	if err != nil || timeout < 1 {
		timeout = 10
	}

	return Config{
		Port:                getEnv("PORT", "8090"),
		BackendURL:          strings.TrimRight(getEnv("BACKEND_URL", "http://127.0.0.1:8080"), "/"),
		BackendUsername:     os.Getenv("BACKEND_USERNAME"),
		BackendPassword:     os.Getenv("BACKEND_PASSWORD"),
		DataDir:             getEnv("DATA_DIR", "./data"),
		StoreName:           getEnv("STORE_NAME", "kiosk"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SyncIntervalSeconds: interval,
		SettleDelaySeconds:  settle,
		RetentionHours:      retention,
		RequestTimeoutSecs:  timeout,
		ManagerPIN:          strings.TrimSpace(os.Getenv("MANAGER_PIN")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
