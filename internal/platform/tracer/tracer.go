// Package tracer is a small tracing abstraction so services emit spans
// without importing OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: for tests and when tracing is off
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span; a non-nil err marks it failed. Call exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute         { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute      { return Attribute{Key: key, Value: value} }
func Int64(key string, value int64) Attribute    { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute        { return Attribute{Key: key, Value: int64(value)} }
func Float64(key string, value float64) Attribute { return Attribute{Key: key, Value: value} }

// Duration records a duration in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashEmail lets traces correlate a subject without carrying the address.
func HashEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanAnonymize    = "anonymization.anonymize"
	SpanBulkRun      = "anonymization.bulk"
	SpanBulkItem     = "anonymization.bulk.item"
	SpanDashboard    = "dashboard.aggregate"
	SpanRectifyApply = "requests.rectification.apply"
)

// Attribute keys.
const (
	AttrTenantID     = "tenant_id"
	AttrSubjectID    = "subject_id"
	AttrSubjectEmail = "subject_email_hash"
	AttrOutcome      = "outcome"
	AttrTotal        = "bulk.total"
	AttrFailed       = "bulk.failed"
	AttrCancelled    = "bulk.cancelled"
	AttrElapsed      = "bulk.elapsed_ms"
	AttrCacheHit     = "cache.hit"
	AttrFieldCount   = "fields.count"
)
