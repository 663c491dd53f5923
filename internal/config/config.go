package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env      string
	HTTPAddr string

	// RunnerURL is the base URL of the Piston-compatible execution backend.
	RunnerURL   string
	ExecTimeout time.Duration

	// RoomGrace is how long an empty room lingers before destruction.
	RoomGrace  time.Duration
	TermLogMax int

	// PGURL enables room snapshot persistence when set.
	PGURL string
}

func Load() Config {
	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		RunnerURL:   getEnv("RUNNER_URL", "https://emkc.org/api/v2/piston"),
		ExecTimeout: getEnvDur("EXEC_TIMEOUT", 15*time.Second),
		RoomGrace:   getEnvDur("ROOM_GRACE", 10*time.Second),
		TermLogMax:  getEnvInt("TERM_LOG_MAX", 100),
		PGURL:       os.Getenv("PG_URL"),
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func getEnvDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
