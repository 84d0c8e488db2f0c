package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/harvest"
	"github.com/JakeFAU/search-harvester/internal/ledger"
)

const (
	defaultEntryLimit = 100
	maxEntryLimit     = 1000
	progressTimeout   = 3 * time.Second
)

// RunInfo identifies the crawl a status server reports on.
type RunInfo struct {
	RunID     string
	Language  string
	StartedAt time.Time
}

// ProgressSource returns live run counters.
type ProgressSource interface {
	Snapshot() harvest.StatsSnapshot
}

// EntryReader loads the progress ledger.
type EntryReader interface {
	Entries(ctx context.Context) ([]ledger.Entry, error)
}

// ProgressHandler exposes read-only run progress endpoints.
type ProgressHandler struct {
	info    RunInfo
	source  ProgressSource
	entries EntryReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the counters, ledger reader, and logger. Either
// source may be nil; its endpoint then answers 503.
func NewProgressHandler(info RunInfo, source ProgressSource, entries EntryReader, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		info:    info,
		source:  source,
		entries: entries,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// Progress handles GET /v1/progress and returns the run identity plus the
// current counters.
func (h *ProgressHandler) Progress(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	writeJSON(w, http.StatusOK, progressDTO{
		RunID:     h.info.RunID,
		Language:  h.info.Language,
		StartedAt: h.info.StartedAt.UTC().Format(time.RFC3339),
		Stats:     h.source.Snapshot(),
	})
}

// ListEntries handles GET /v1/ledger?pushed=&limit=&offset=. It returns
// {"entries": [...], "total": n} where total counts entries after the pushed
// filter, 400 for invalid paging, 503 without a ledger, or 500 when the ledger
// cannot be read.
func (h *ProgressHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if h.entries == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultEntryLimit, maxEntryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pushed := strings.TrimSpace(r.URL.Query().Get("pushed"))
	if pushed != "" {
		if _, err := harvest.ParseDay(pushed); err != nil {
			writeError(w, http.StatusBadRequest, "invalid pushed date")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	all, err := h.entries.Entries(ctx)
	if err != nil {
		h.logger.Error("load ledger failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}

	filtered := all
	if pushed != "" {
		filtered = make([]ledger.Entry, 0, len(all))
		for _, e := range all {
			if e.Key.Pushed == pushed {
				filtered = append(filtered, e)
			}
		}
	}
	page := []ledger.Entry{}
	if offset < len(filtered) {
		page = filtered[offset:min(offset+limit, len(filtered))]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": toEntryDTOs(page),
		"total":   len(filtered),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type progressDTO struct {
	RunID     string                `json:"run_id"`
	Language  string                `json:"language"`
	StartedAt string                `json:"started_at"`
	Stats     harvest.StatsSnapshot `json:"stats"`
}

type entryDTO struct {
	LogDate           string `json:"log_date"`
	BaseFilter        string `json:"base_filter"`
	CreatedRange      string `json:"created_range"`
	PushedDate        string `json:"pushed_date"`
	Page              int    `json:"page"`
	TotalCount        int    `json:"total_count"`
	IncompleteResults bool   `json:"incomplete_results"`
	CompleteQuery     string `json:"complete_query"`
}

func toEntryDTOs(in []ledger.Entry) []entryDTO {
	out := make([]entryDTO, 0, len(in))
	for _, e := range in {
		out = append(out, entryDTO{
			LogDate:           e.LogDate.UTC().Format(time.RFC3339Nano),
			BaseFilter:        e.Key.Base,
			CreatedRange:      e.Key.Created,
			PushedDate:        e.Key.Pushed,
			Page:              e.Page,
			TotalCount:        e.TotalCount,
			IncompleteResults: e.IncompleteResults,
			CompleteQuery:     e.CompleteQuery,
		})
	}
	return out
}

// LedgerFile reads entries from a ledger path on every call.
type LedgerFile string

// Entries implements EntryReader.
func (f LedgerFile) Entries(context.Context) ([]ledger.Entry, error) {
	return ledger.Load(string(f))
}
