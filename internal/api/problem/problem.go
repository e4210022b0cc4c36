// Package problem renders RFC 7807 problem details for the wallet API.
package problem

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	ContentType = "application/problem+json"
	baseTypeURL = "https://errors.upi-wallet.dev/"
	traceHeader = "X-Trace-ID"
)

// Details is the RFC 7807 body. TraceID echoes the request's trace header.
type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Type expands a slug such as "wallet/insufficient-funds" to a full type URI.
// Absolute URIs and "about:blank" pass through.
func Type(slug string) string {
	switch {
	case slug == "":
		return "about:blank"
	case slug == "about:blank", strings.HasPrefix(slug, "http://"), strings.HasPrefix(slug, "https://"):
		return slug
	default:
		return baseTypeURL + strings.TrimPrefix(slug, "/")
	}
}

// New builds problem details for r.
func New(r *http.Request, status int, slug, detail string) Details {
	d := Details{
		Type:   Type(slug),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.TraceID = r.Header.Get(traceHeader)
	}
	return d
}

// Write sends a problem response for status.
func Write(w http.ResponseWriter, r *http.Request, status int, slug, detail string) {
	Render(w, New(r, status, slug, detail))
}

// Render encodes d. The trace id falls back to the one already set on the response.
func Render(w http.ResponseWriter, d Details) {
	if d.TraceID == "" {
		d.TraceID = w.Header().Get(traceHeader)
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
