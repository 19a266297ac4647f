package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/period"
)

const maxQueryLength = 200

type errorResponse struct {
	Error    string   `json:"error"`
	Reason   string   `json:"reason,omitempty"`
	Examples []string `json:"examples,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Default(log.ComponentHTTP).Error("Failed to encode response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeParseError answers a period the user wrote but we could not use,
// together with the formats we accept.
func writeParseError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Examples: period.Examples()}
	switch {
	case errors.Is(err, core.ErrPeriodOutOfRange):
		resp.Reason = "out_of_range"
	case errors.Is(err, core.ErrUnparsed):
		resp.Reason = "unrecognized"
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

// sanitizeInput drops control characters, trims whitespace and caps the length.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) > maxQueryLength {
		s = strings.ToValidUTF8(s[:maxQueryLength], "")
	}
	return s
}

// headerValue makes s safe for a response header.
func headerValue(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return ' '
		}
		return r
	}, s)
	if len(s) > 512 {
		s = strings.ToValidUTF8(s[:512], "") + "..."
	}
	return s
}

// parseLimit reads a positive integer query parameter, falling back to def
// and capping at ceiling.
func parseLimit(r *http.Request, name string, def, ceiling int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}
