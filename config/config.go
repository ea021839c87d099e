package config

import (
	"os"
	"time"
)

type Config struct {
	DownloadDir     string
	SearchTermsPath string
	ProvidersPath   string // optional YAML override of the built-in policy
	ProxyURL        string // optional SOCKS5 endpoint, e.g. 127.0.0.1:9050
	TorControlAddr  string // optional Tor control port for circuit rotation
	Substrate       string // "plain" or "browser"
	WatchCron       string // optional cron spec to re-run failed queries
	StepDelay       time.Duration
	InterQueryDelay time.Duration
}

func Load() (*Config, error) {
	return &Config{
		DownloadDir:     getEnv("DOWNLOAD_DIR", "./downloads"),
		SearchTermsPath: getEnv("SEARCH_TERMS_FILE", "search_terms.txt"),
		ProvidersPath:   getEnv("PROVIDERS_FILE", ""),
		ProxyURL:        getEnv("PROXY_URL", ""),
		TorControlAddr:  getEnv("TOR_CONTROL_ADDR", ""),
		Substrate:       getEnv("SUBSTRATE", "plain"),
		WatchCron:       getEnv("WATCH_CRON", ""),
		StepDelay:       getDuration("STEP_DELAY", 2*time.Second),
		InterQueryDelay: getDuration("INTER_QUERY_DELAY", 2*time.Second),
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
