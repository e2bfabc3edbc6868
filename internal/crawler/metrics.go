package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalSearchRequests tracks listing requests posted to the portal.
	TotalSearchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_search_requests_total",
		Help: "The total number of search listing requests sent.",
	})
	// TotalDocumentsDownloaded tracks fresh document downloads persisted to storage.
	TotalDocumentsDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_documents_downloaded_total",
		Help: "The total number of documents freshly downloaded and saved.",
	})
	// TotalDedupHits tracks rows skipped because the descriptor was already downloaded.
	TotalDedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_dedup_hits_total",
		Help: "The total number of rows skipped by descriptor deduplication.",
	})
	// TotalUnsupportedRows tracks listing rows without an extractable document reference.
	TotalUnsupportedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_unsupported_rows_total",
		Help: "The total number of listing rows in an unsupported format.",
	})
	// TotalSentinelResponses tracks downloads rejected by the not-found sentinel check.
	TotalSentinelResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_sentinel_responses_total",
		Help: "The total number of document responses matching the not-found sentinel.",
	})
	// TotalSessionRefreshes tracks captcha-gated token refreshes.
	TotalSessionRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_session_refreshes_total",
		Help: "The total number of captcha-gated token refreshes performed.",
	})
	// TotalSessionRotations tracks fresh sessions started for rate-limit evasion.
	TotalSessionRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_session_rotations_total",
		Help: "The total number of sessions rotated after the download threshold.",
	})
	// TotalCaptchaAttempts tracks captcha recognition attempts.
	TotalCaptchaAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_captcha_attempts_total",
		Help: "The total number of captcha recognition attempts.",
	})
	// TotalCaptchaFailures tracks captcha solves abandoned at the retry ceiling.
	TotalCaptchaFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_captcha_failures_total",
		Help: "The total number of captcha solves that hit the retry ceiling.",
	})
	// TotalTasksCompleted tracks court/date-range tasks finished without error.
	TotalTasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_tasks_completed_total",
		Help: "The total number of tasks completed successfully.",
	})
	// TotalTasksFailed tracks tasks abandoned after an unrecoverable error.
	TotalTasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_tasks_failed_total",
		Help: "The total number of tasks that ended in failure.",
	})
)
