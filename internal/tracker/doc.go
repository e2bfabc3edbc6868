// Package tracker persists per-court crawl progress to a JSON file so
// interrupted runs resume where they left off.
package tracker
