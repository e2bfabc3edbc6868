package crawler

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// actionPattern matches the portal's row action attribute and captures the
// document reference path.
var actionPattern = regexp.MustCompile(`javascript:open_pdf\('.*?','.*?','(.*?)'\)`)

// ArtifactRecorder collects produced file paths for the archival
// collaborator. The court code is passed explicitly because the portal's
// reference paths identify the bench, not the court.
type ArtifactRecorder interface {
	RecordDescriptor(courtCode, ref, path string)
	RecordDocument(courtCode, ref, path string)
}

// Processor extracts the document reference from each listing row,
// consults dedup state, triggers the fetcher, and keeps the sidecar
// descriptor consistent with the latest listing payload.
type Processor struct {
	store    DocumentStore
	fetcher  DocumentFetcher
	courts   CourtNamer
	recorder ArtifactRecorder
	failLog  string
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewProcessor constructs a Processor. recorder may be nil.
func NewProcessor(
	store DocumentStore,
	fetcher DocumentFetcher,
	courts CourtNamer,
	recorder ArtifactRecorder,
	failLog string,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:    store,
		fetcher:  fetcher,
		courts:   courts,
		recorder: recorder,
		failLog:  failLog,
		logger:   logger,
	}
}

// ProcessRow handles one listing row and reports whether it produced a
// fresh download. Rows without an extractable reference are skipped
// without error.
func (p *Processor) ProcessRow(ctx context.Context, task CourtTask, row ResultRow, pos int) (bool, error) {
	ref, ok := extractReference(row.HTML)
	if !ok {
		TotalUnsupportedRows.Inc()
		p.logger.Info("row without document action, likely multi-language judgment",
			zap.String("court", task.CourtCode),
			zap.Int("row", pos),
		)
		p.appendParseFailure(row.HTML)
		return false, nil
	}

	already := p.store.Downloaded(ref)
	fresh := false
	if already {
		TotalDedupHits.Inc()
	} else {
		var err error
		fresh, err = p.fetcher.Download(ctx, task.CourtCode, ref, pos)
		if err != nil {
			return false, fmt.Errorf("download %s: %w", ref, err)
		}
	}

	name, _ := p.courts.Name(task.CourtCode)
	d := Descriptor{
		CourtCode:  task.CourtCode,
		CourtName:  name,
		RawHTML:    row.HTML,
		PDFLink:    ref,
		Downloaded: already || fresh,
	}
	// Rewrite even on dedup hits so the descriptor reflects the latest
	// listing payload.
	path, err := p.store.WriteDescriptor(ref, d)
	if err != nil {
		return fresh, fmt.Errorf("write descriptor %s: %w", ref, err)
	}
	if p.recorder != nil {
		p.recorder.RecordDescriptor(task.CourtCode, ref, path)
	}
	if fresh {
		TotalDocumentsDownloaded.Inc()
	}
	return fresh, nil
}

// extractReference pulls the document reference out of the row's button
// action and strips any page fragment.
func extractReference(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	onclick, exists := doc.Find("button[onclick]").First().Attr("onclick")
	if !exists {
		return "", false
	}
	m := actionPattern.FindStringSubmatch(onclick)
	if m == nil {
		return "", false
	}
	ref, _, _ := strings.Cut(m[1], "#")
	if ref == "" {
		return "", false
	}
	return ref, true
}

// appendParseFailure keeps the raw snippet for offline format analysis.
func (p *Processor) appendParseFailure(html string) {
	if p.failLog == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.failLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		p.logger.Warn("open parse-failure log", zap.Error(err))
		return
	}
	defer f.Close() //nolint:errcheck // best-effort append
	if _, err := f.WriteString(html + "\n"); err != nil {
		p.logger.Warn("append parse failure", zap.Error(err))
	}
}
