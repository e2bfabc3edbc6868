// Package crawler implements the resumable crawl engine for the judgment
// portal: task partitioning, the paginated search loop, result processing,
// document fetching, and the concurrent scheduler that ties them together.
package crawler
