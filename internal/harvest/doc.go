// Package harvest implements the adaptive range-partitioning crawl engine: it
// probes a search window, splits its creation-date scope until every leaf fits
// the retrievable result cap, paginates each leaf exhaustively, and records
// progress so an interrupted run can resume without losing pages.
package harvest
