package crawler

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	// notFoundSentinelBytes is the exact length of the portal's
	// "document not found" response body.
	notFoundSentinelBytes = 315
	// linkCaptchaAttempts bounds captcha-gated link resolution retries.
	linkCaptchaAttempts = 3
)

// Fetcher resolves document references to download links, handling the
// captcha-gated path, and streams validated bytes to storage.
type Fetcher struct {
	portal   Portal
	solver   CaptchaSolver
	store    DocumentStore
	recorder ArtifactRecorder
	baseURL  string
	logger   *zap.Logger
}

// NewFetcher constructs a Fetcher. recorder may be nil.
func NewFetcher(
	portal Portal,
	solver CaptchaSolver,
	store DocumentStore,
	recorder ArtifactRecorder,
	baseURL string,
	logger *zap.Logger,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		portal:   portal,
		solver:   solver,
		store:    store,
		recorder: recorder,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// Download fetches one document. A false return with nil error is a soft
// failure: the row stays marked not-downloaded for a later pass.
func (f *Fetcher) Download(ctx context.Context, courtCode, ref string, rowIndex int) (bool, error) {
	res, err := f.portal.ResolveLink(ctx, ref, rowIndex)
	if err != nil {
		return false, fmt.Errorf("resolve link: %w", err)
	}
	if res.Challenge != nil {
		res, err = f.solveLinkCaptcha(ctx, ref, rowIndex, res.Challenge)
		if err != nil {
			return false, err
		}
	}
	if res.Link == "" {
		f.logger.Warn("no download link resolved", zap.String("ref", ref))
		return false, nil
	}

	data, err := f.portal.DownloadDocument(ctx, res.Link)
	if err != nil {
		return false, fmt.Errorf("download document: %w", err)
	}
	if len(data) == 0 {
		f.logger.Error("empty document response", zap.String("ref", ref))
		return false, nil
	}
	if len(data) == notFoundSentinelBytes {
		TotalSentinelResponses.Inc()
		f.logger.Error("not-found sentinel response",
			zap.String("ref", ref),
			zap.Int("bytes", len(data)),
		)
		return false, nil
	}

	path, err := f.store.PutDocument(ref, data)
	if err != nil {
		return false, fmt.Errorf("store document: %w", err)
	}
	if f.recorder != nil {
		f.recorder.RecordDocument(courtCode, ref, path)
	}
	f.logger.Debug("document downloaded",
		zap.String("ref", ref),
		zap.Int("bytes", len(data)),
	)
	return true, nil
}

// solveLinkCaptcha answers the challenge embedded in the link-resolution
// response and resubmits, up to linkCaptchaAttempts times. Exhausting the
// bound is a soft failure (empty Resolution, nil error).
func (f *Fetcher) solveLinkCaptcha(ctx context.Context, ref string, rowIndex int, challenge *CaptchaChallenge) (Resolution, error) {
	for attempt := 0; attempt < linkCaptchaAttempts; attempt++ {
		imgURL, err := extractChallengeImageURL(challenge.PageHTML)
		if err != nil {
			return Resolution{}, fmt.Errorf("parse challenge page: %w", err)
		}
		answer, err := f.solver.Solve(ctx, f.baseURL+imgURL, f.portal.CookieHeader())
		if err != nil {
			return Resolution{}, fmt.Errorf("solve link captcha: %w", err)
		}
		next, err := f.portal.SubmitLinkCaptcha(ctx, ref, rowIndex, answer, challenge.AppToken)
		if err != nil {
			return Resolution{}, fmt.Errorf("submit link captcha: %w", err)
		}
		if !next.NotSolved {
			return next, nil
		}
		f.logger.Warn("captcha answer rejected by portal",
			zap.String("ref", ref),
			zap.Int("attempt", attempt+1),
		)
		if next.Challenge != nil {
			challenge = next.Challenge
		}
	}
	f.logger.Error("giving up on captcha-gated link resolution", zap.String("ref", ref))
	return Resolution{}, nil
}

// extractChallengeImageURL finds the captcha image source inside the
// challenge page markup.
func extractChallengeImageURL(pageHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", err
	}
	src, exists := doc.Find("img#captcha_image_pdf").First().Attr("src")
	if !exists || src == "" {
		return "", fmt.Errorf("challenge page has no captcha image")
	}
	return src, nil
}
