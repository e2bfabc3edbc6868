// Package config initializes the application's configuration. It uses
// the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration
// system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InitConfig sets up Viper's search paths, defaults, and environment
// binding. Call once at startup, before any LoadConfig.
func InitConfig(cfgFile string, logger *zap.Logger) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/judgment-crawler/")
		viper.AddConfigPath("$HOME/.judgment-crawler")
	}

	viper.SetDefault("crawler.output_dir", "data/judgments")
	viper.SetDefault("crawler.court_codes_file", "court_codes.json")
	viper.SetDefault("crawler.parse_failure_log", "data/parse_failures.log")
	viper.SetDefault("crawler.manifest_file", "data/manifest.json")
	viper.SetDefault("crawler.start_date", "2008-01-01")
	viper.SetDefault("crawler.day_step", 1)
	viper.SetDefault("crawler.workers", 4)
	viper.SetDefault("crawler.page_size", 5000)
	viper.SetDefault("crawler.session_download_limit", 25)
	viper.SetDefault("crawler.courts", []string{})
	viper.SetDefault("crawler.from_date", "")
	viper.SetDefault("crawler.end_date", "")

	viper.SetDefault("portal.base_url", "https://judgments.ecourts.gov.in")
	viper.SetDefault("portal.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	viper.SetDefault("portal.search_timeout", "60s")
	viper.SetDefault("portal.request_timeout", "30s")
	viper.SetDefault("portal.download_timeout", "30s")
	viper.SetDefault("portal.auth_retries", 3)

	viper.SetDefault("captcha.math_mode", false)
	viper.SetDefault("captcha.attempts", 10)
	viper.SetDefault("captcha.length", 6)
	viper.SetDefault("captcha.tmp_dir", "data/captcha-tmp")
	viper.SetDefault("captcha.failures_dir", "data/captcha-failures")
	viper.SetDefault("captcha.ocr_url", "http://localhost:8089/recognize")
	viper.SetDefault("captcha.ocr_timeout", "20s")

	viper.SetDefault("tracker.path", "data/track.json")
	viper.SetDefault("api.status_addr", "")

	viper.SetEnvPrefix("JUDGMENTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("config file not found, using defaults and environment variables")
		} else {
			logger.Error("read config file", zap.Error(err))
		}
	} else {
		logger.Info("using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
