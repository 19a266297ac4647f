package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finbot/internal/assistant"
	"finbot/internal/balances"
	"finbot/internal/cache"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/middleware/ratelimit"
	"finbot/internal/middleware/security"
	"finbot/internal/middleware/trace"
	"finbot/internal/period"
)

const (
	cacheStampLayout = "02/01/2006 15:04:05"
	defaultHistory   = 20
	maxHistory       = 200
)

type (
	periodResponse struct {
		Year      int    `json:"year"`
		Month     int    `json:"month"`
		Rule      string `json:"rule"`
		Period    string `json:"period"`
		Key       string `json:"key"`
		MonthName string `json:"month_name"`
	}

	attemptResponse struct {
		Strategy string `json:"strategy"`
		Error    string `json:"error"`
	}

	notFoundResponse struct {
		Error      string            `json:"error"`
		Period     string            `json:"period"`
		Quality    string            `json:"quality"`
		Diagnostic string            `json:"diagnostic"`
		Attempts   []attemptResponse `json:"attempts"`
	}

	recordResponse struct {
		Account          string  `json:"account"`
		Balance          float64 `json:"balance"`
		Formatted        string  `json:"formatted"`
		ConversionFailed bool    `json:"conversion_failed"`
		Raw              string  `json:"raw,omitempty"`
	}

	balancesResponse struct {
		Records            []recordResponse `json:"records"`
		Count              int              `json:"count"`
		Total              float64          `json:"total"`
		TotalFormatted     string           `json:"total_formatted"`
		ConversionFailures int              `json:"conversion_failures"`
		FetchedAt          time.Time        `json:"fetched_at"`
		CacheFrom          string           `json:"cache_from"`
		Fresh              bool             `json:"fresh"`
	}

	cacheStatusResponse struct {
		State     string     `json:"state"`
		Message   string     `json:"message"`
		Populated bool       `json:"populated"`
		Fresh     bool       `json:"fresh"`
		FetchedAt *time.Time `json:"fetched_at,omitempty"`
		Records   int        `json:"records"`
		TTL       string     `json:"ttl"`
		Age       string     `json:"age,omitempty"`
	}

	statusResponse struct {
		Balances     cacheStatusResponse       `json:"balances"`
		Uptime       string                    `json:"uptime"`
		Requests     trace.Metrics             `json:"requests"`
		RateLimit    ratelimit.Metrics         `json:"rate_limit"`
		Security     security.DetectionMetrics `json:"security"`
		ArtifactMemo *cache.Stats              `json:"artifact_memo,omitempty"`
	}

	resolutionResponse struct {
		ID           string    `json:"id"`
		Text         string    `json:"text,omitempty"`
		Period       string    `json:"period"`
		Year         int       `json:"year"`
		Month        int       `json:"month"`
		Quality      string    `json:"quality"`
		Strategy     string    `json:"strategy,omitempty"`
		Diagnostic   string    `json:"diagnostic"`
		Bytes        int       `json:"bytes"`
		Repositioned bool      `json:"repositioned"`
		CreatedAt    time.Time `json:"created_at"`
	}
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs every registered readiness check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string, len(s.checks)+1)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
				"check", name, log.FieldError, err)
			continue
		}
		checks[name] = "ok"
	}
	checks["balances_cache"] = cacheState(s.app.CacheStatus())

	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	text := sanitizeInput(r.URL.Query().Get("q"))
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    "missing q parameter",
			Examples: period.Examples(),
		})
		return
	}

	p, res, err := s.app.ParsePeriod(r.Context(), text)
	if err != nil {
		writeParseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, periodResponse{
		Year:      p.Year,
		Month:     p.Month,
		Rule:      res.Rule.String(),
		Period:    p.String(),
		Key:       p.Key(),
		MonthName: period.MonthName(p.Month),
	})
}

// handleArtifact resolves ?q= (or ?year=&month=) and streams the artifact.
// Found artifacts are memoised per period.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	p, ok := s.periodFromRequest(w, r)
	if !ok {
		return
	}

	if s.memo != nil {
		if out, hit := s.memo.Get(p.Key()); hit {
			writeArtifact(w, out, true)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	out, err := s.app.ResolveArtifact(ctx, p)
	if err != nil {
		writeParseError(w, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(ctx)).LogResolution(ctx, p.Year, p.Month,
		out.Quality.String(), out.Strategy, len(out.Attempts), len(out.Artifact))

	if !out.Found() {
		resp := notFoundResponse{
			Error:      "no artifact found for " + p.String(),
			Period:     p.String(),
			Quality:    out.Quality.String(),
			Diagnostic: out.Diagnostic,
			Attempts:   make([]attemptResponse, 0, len(out.Attempts)),
		}
		for _, a := range out.Attempts {
			resp.Attempts = append(resp.Attempts, attemptResponse{Strategy: a.Strategy, Error: a.Err})
		}
		writeJSON(w, http.StatusNotFound, resp)
		return
	}

	if s.memo != nil {
		s.memo.Set(p.Key(), out)
	}
	writeArtifact(w, out, false)
}

func (s *Server) periodFromRequest(w http.ResponseWriter, r *http.Request) (core.Period, bool) {
	q := r.URL.Query()
	if text := sanitizeInput(q.Get("q")); text != "" {
		p, _, err := s.app.ParsePeriod(r.Context(), text)
		if err != nil {
			writeParseError(w, err)
			return core.Period{}, false
		}
		return p, true
	}

	ys, ms := strings.TrimSpace(q.Get("year")), strings.TrimSpace(q.Get("month"))
	if ys == "" || ms == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    "provide q, or both year and month",
			Examples: period.Examples(),
		})
		return core.Period{}, false
	}
	year, yerr := strconv.Atoi(ys)
	month, merr := strconv.Atoi(ms)
	if yerr != nil || merr != nil {
		writeError(w, http.StatusBadRequest, "year and month must be integers")
		return core.Period{}, false
	}
	p, err := core.NewPeriod(year, month)
	if err != nil {
		writeParseError(w, err)
		return core.Period{}, false
	}
	return p, true
}

func writeArtifact(w http.ResponseWriter, out core.Outcome, memoised bool) {
	h := w.Header()
	contentType := out.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(out.Artifact)))
	h.Set("X-Period", out.Period.String())
	h.Set("X-Quality", out.Quality.String())
	h.Set("X-Strategy", headerValue(out.Strategy))
	h.Set("X-Diagnostic", headerValue(out.Diagnostic))
	h.Set("X-Repositioned", strconv.FormatBool(out.Repositioned))
	if memoised {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Artifact)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Balances(r.Context())
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Balances read failed", err, log.OpRead, nil)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newBalancesResponse(snap, s.app.CacheStatus().Fresh))
}

// handleRefreshBalances forces a fetch. On failure the cached snapshot stays
// in place and the response says so.
func (s *Server) handleRefreshBalances(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.RefreshBalances(r.Context())
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Balances refresh failed", err, log.OpRefresh, nil)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"status": newCacheStatusResponse(s.app.CacheStatus()),
		})
		return
	}
	writeJSON(w, http.StatusOK, newBalancesResponse(snap, s.app.CacheStatus().Fresh))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Balances:  newCacheStatusResponse(s.app.CacheStatus()),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Requests:  s.tracer.Metrics(),
		RateLimit: s.limiter.Metrics(),
		Security:  s.detector.Metrics(),
	}
	if s.memo != nil {
		stats := s.memo.Stats()
		resp.ArtifactMemo = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, "limit", defaultHistory, maxHistory)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.app.History(r.Context(), limit)
	if errors.Is(err, assistant.ErrNoJournal) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "History read failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}

	out := make([]resolutionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, resolutionResponse{
			ID:           e.ID,
			Text:         e.Text,
			Period:       e.Period.String(),
			Year:         e.Period.Year,
			Month:        e.Period.Month,
			Quality:      e.Quality.String(),
			Strategy:     e.Strategy,
			Diagnostic:   e.Diagnostic,
			Bytes:        e.Bytes,
			Repositioned: e.Repositioned,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolutions": out})
}

func newBalancesResponse(snap core.Snapshot, fresh bool) balancesResponse {
	resp := balancesResponse{
		Records:            make([]recordResponse, 0, snap.Len()),
		Count:              snap.Len(),
		ConversionFailures: snap.ConversionFailures(),
		FetchedAt:          snap.FetchedAt,
		CacheFrom:          snap.FetchedAt.Local().Format(cacheStampLayout),
		Fresh:              fresh,
	}
	for _, rec := range snap.Records {
		resp.Records = append(resp.Records, recordResponse{
			Account:          rec.Account,
			Balance:          rec.Balance.Reais(),
			Formatted:        rec.Balance.FormatBRL(),
			ConversionFailed: rec.ConversionFailed,
			Raw:              rec.Raw,
		})
	}
	total := snap.Total()
	resp.Total = total.Reais()
	resp.TotalFormatted = total.FormatBRL()
	return resp
}

func cacheState(st balances.Status) string {
	switch {
	case !st.Populated:
		return "empty"
	case st.Fresh:
		return "fresh"
	default:
		return "expired"
	}
}

func newCacheStatusResponse(st balances.Status) cacheStatusResponse {
	resp := cacheStatusResponse{
		State:     cacheState(st),
		Populated: st.Populated,
		Fresh:     st.Fresh,
		Records:   st.Records,
		TTL:       st.TTL.String(),
	}
	switch resp.State {
	case "empty":
		resp.Message = "cache not populated yet; the first balances read loads it"
	case "fresh":
		resp.Message = "cache is valid"
	default:
		resp.Message = "cache expired; POST /api/balances/refresh to reload it"
	}
	if st.Populated {
		at := st.FetchedAt
		resp.FetchedAt = &at
		resp.Age = st.Age.Round(time.Second).String()
	}
	return resp
}
