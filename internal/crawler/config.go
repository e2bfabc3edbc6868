package crawler

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configuration knob that influences a crawl run.
// All values originate from Viper so the crawler can be configured via
// files, env vars, or CLI flags.
type Config struct {
	OutputDir            string
	CourtCodesFile       string
	TrackerFile          string
	ParseFailureLog      string
	ManifestFile         string
	StartDate            string
	DayStep              int
	Workers              int
	PageSize             int
	SessionDownloadLimit int

	PortalBaseURL   string
	UserAgent       string
	SearchTimeout   time.Duration
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	AuthRetries     int

	CaptchaMathMode    bool
	CaptchaAttempts    int
	CaptchaLength      int
	CaptchaTmpDir      string
	CaptchaFailuresDir string
	OCRServiceURL      string
	OCRTimeout         time.Duration

	StatusAddr string
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		OutputDir:            v.GetString("crawler.output_dir"),
		CourtCodesFile:       v.GetString("crawler.court_codes_file"),
		TrackerFile:          v.GetString("tracker.path"),
		ParseFailureLog:      v.GetString("crawler.parse_failure_log"),
		ManifestFile:         v.GetString("crawler.manifest_file"),
		StartDate:            v.GetString("crawler.start_date"),
		DayStep:              v.GetInt("crawler.day_step"),
		Workers:              v.GetInt("crawler.workers"),
		PageSize:             v.GetInt("crawler.page_size"),
		SessionDownloadLimit: v.GetInt("crawler.session_download_limit"),
		PortalBaseURL:        v.GetString("portal.base_url"),
		UserAgent:            v.GetString("portal.user_agent"),
		SearchTimeout:        v.GetDuration("portal.search_timeout"),
		RequestTimeout:       v.GetDuration("portal.request_timeout"),
		DownloadTimeout:      v.GetDuration("portal.download_timeout"),
		AuthRetries:          v.GetInt("portal.auth_retries"),
		CaptchaMathMode:      v.GetBool("captcha.math_mode"),
		CaptchaAttempts:      v.GetInt("captcha.attempts"),
		CaptchaLength:        v.GetInt("captcha.length"),
		CaptchaTmpDir:        v.GetString("captcha.tmp_dir"),
		CaptchaFailuresDir:   v.GetString("captcha.failures_dir"),
		OCRServiceURL:        v.GetString("captcha.ocr_url"),
		OCRTimeout:           v.GetDuration("captcha.ocr_timeout"),
		StatusAddr:           v.GetString("api.status_addr"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("crawler.output_dir must be set")
	}
	if c.CourtCodesFile == "" {
		return fmt.Errorf("crawler.court_codes_file must be set")
	}
	if c.TrackerFile == "" {
		return fmt.Errorf("tracker.path must be set")
	}
	if _, err := time.Parse(DateLayout, c.StartDate); err != nil {
		return fmt.Errorf("crawler.start_date must be YYYY-MM-DD: %w", err)
	}
	if c.DayStep <= 0 {
		return fmt.Errorf("crawler.day_step must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("crawler.page_size must be > 0")
	}
	if c.SessionDownloadLimit <= 0 {
		return fmt.Errorf("crawler.session_download_limit must be > 0")
	}
	if c.PortalBaseURL == "" {
		return fmt.Errorf("portal.base_url must be set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("portal.user_agent must be set")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("portal.search_timeout must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("portal.request_timeout must be > 0")
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("portal.download_timeout must be > 0")
	}
	if c.AuthRetries <= 0 {
		return fmt.Errorf("portal.auth_retries must be > 0")
	}
	if c.CaptchaAttempts <= 0 {
		return fmt.Errorf("captcha.attempts must be > 0")
	}
	if c.CaptchaLength <= 0 {
		return fmt.Errorf("captcha.length must be > 0")
	}
	if c.OCRServiceURL == "" {
		return fmt.Errorf("captcha.ocr_url must be set")
	}
	if c.OCRTimeout <= 0 {
		return fmt.Errorf("captcha.ocr_timeout must be > 0")
	}
	return nil
}
