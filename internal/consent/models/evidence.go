package models

import (
	"context"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"compliance/internal/platform/privacy"
	"compliance/pkg/requestcontext"
)

// Evidence is the capture-time snapshot kept with a consent decision.
// The client IP is stored truncated.
type Evidence struct {
	CapturedAt      time.Time `json:"captured_at"`
	ClientSignature string    `json:"client_signature,omitempty"`
	ClientIP        string    `json:"client_ip,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	Browser         string    `json:"browser,omitempty"`
	OS              string    `json:"os,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
}

// CaptureEvidence snapshots the request metadata carried by ctx.
func CaptureEvidence(ctx context.Context, signature string) Evidence {
	ev := Evidence{
		CapturedAt:      requestcontext.Now(ctx),
		ClientSignature: strings.TrimSpace(signature),
		RequestID:       requestcontext.RequestID(ctx),
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		ev.ClientIP = privacy.AnonymizeIP(ip)
	}
	if raw := requestcontext.UserAgent(ctx); raw != "" {
		ua := useragent.New(raw)
		browser, version := ua.Browser()
		if major, _, _ := strings.Cut(version, "."); major != "" {
			browser = browser + " " + major
		}
		ev.UserAgent = raw
		ev.Browser = browser
		ev.OS = ua.OS()
	}
	return ev
}
