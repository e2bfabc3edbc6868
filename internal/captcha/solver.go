package captcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// ErrUnsolved means the solver hit its attempt ceiling without producing
// a plausible answer.
var ErrUnsolved = errors.New("captcha unsolved after maximum attempts")

// Config carries the solver settings.
type Config struct {
	// MathMode switches between arithmetic challenges and plain
	// alphanumeric text challenges.
	MathMode bool
	// MaxAttempts bounds fetch-and-recognize rounds per Solve call.
	MaxAttempts int
	// AnswerLength is the expected answer length in text mode.
	AnswerLength int
	// TmpDir receives in-flight challenge images.
	TmpDir string
	// FailuresDir receives images the recognizer could not read, kept
	// for offline inspection. Empty disables the keep.
	FailuresDir string
	// FetchTimeout bounds one challenge image download.
	FetchTimeout time.Duration
}

// ShortIDFunc names temp image files; collisions only risk clobbering a
// concurrent solver's scratch file.
type ShortIDFunc func() string

// Solver fetches challenge images with the session's cookies and runs
// them through a Recognizer until an answer passes the plausibility
// check. It implements crawler.CaptchaSolver.
type Solver struct {
	cfg        Config
	recognizer Recognizer
	shortID    ShortIDFunc
	client     *http.Client
	logger     *zap.Logger
}

// NewSolver constructs a Solver.
func NewSolver(cfg Config, recognizer Recognizer, shortID ShortIDFunc, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		cfg:        cfg,
		recognizer: recognizer,
		shortID:    shortID,
		client:     &http.Client{Timeout: cfg.FetchTimeout},
		logger:     logger,
	}
}

// Solve fetches the challenge image and recognizes it, retrying with a
// fresh image on every implausible read, up to MaxAttempts times.
func (s *Solver) Solve(ctx context.Context, imageURL, cookieHeader string) (string, error) {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		crawler.TotalCaptchaAttempts.Inc()

		path, err := s.fetchImage(ctx, imageURL, cookieHeader)
		if err != nil {
			return "", fmt.Errorf("fetch captcha image: %w", err)
		}

		results, err := s.recognizer.Recognize(ctx, path)
		if err != nil {
			s.discard(path)
			return "", fmt.Errorf("recognize captcha: %w", err)
		}

		text, ok := topText(results)
		if !ok {
			s.logger.Debug("captcha image yielded no text", zap.Int("attempt", attempt))
			s.discard(path)
			continue
		}

		answer, ok := s.interpret(text, path, attempt)
		if ok {
			return answer, nil
		}
	}

	crawler.TotalCaptchaFailures.Inc()
	return "", fmt.Errorf("%w (%d)", ErrUnsolved, s.cfg.MaxAttempts)
}

// interpret validates one recognized text. Implausible reads discard or
// quarantine the image and report false so the loop fetches a new one.
func (s *Solver) interpret(text, imagePath string, attempt int) (string, bool) {
	if s.cfg.MathMode {
		result, err := evalMath(text)
		if err != nil {
			s.logger.Debug("captcha text is not arithmetic",
				zap.String("text", text),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			s.quarantine(imagePath)
			return "", false
		}
		s.discard(imagePath)
		return strconv.Itoa(result), true
	}

	cleaned := stripNonAlnum(text)
	if len(cleaned) != s.cfg.AnswerLength {
		s.logger.Debug("captcha text has wrong length",
			zap.String("text", cleaned),
			zap.Int("attempt", attempt),
		)
		s.discard(imagePath)
		return "", false
	}
	s.discard(imagePath)
	return cleaned, true
}

func (s *Solver) fetchImage(ctx context.Context, imageURL, cookieHeader string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", cookieHeader)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(s.cfg.TmpDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.TmpDir, "captcha_"+s.shortID()+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		s.discard(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// quarantine moves an unreadable image aside for offline inspection.
func (s *Solver) quarantine(path string) {
	if s.cfg.FailuresDir == "" {
		s.discard(path)
		return
	}
	if err := os.MkdirAll(s.cfg.FailuresDir, 0o755); err != nil {
		s.logger.Warn("create failures dir", zap.Error(err))
		s.discard(path)
		return
	}
	dst := filepath.Join(s.cfg.FailuresDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		s.logger.Warn("quarantine captcha image", zap.Error(err))
		s.discard(path)
	}
}

func (s *Solver) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove captcha image", zap.String("path", path), zap.Error(err))
	}
}

func stripNonAlnum(text string) string {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
