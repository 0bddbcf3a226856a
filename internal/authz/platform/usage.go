package platform

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/pkg/httpx"
)

var ErrQuotaExceeded = errors.New("platform: usage quota exceeded")

// UsageKind names a metered operation.
type UsageKind string

const (
	UsageExternalDataRead  UsageKind = "external_data_read"
	UsageExternalDataWrite UsageKind = "external_data_write"
)

// UsageMeter gates metered operations with one token bucket per
// (kind, identity, client).
type UsageMeter struct {
	limiters map[UsageKind]*httpx.KeyedLimiter
}

// NewUsageMeter allows readsPerMin external data reads and writesPerMin
// writes per identity and client. Non-positive values disable the quota.
func NewUsageMeter(readsPerMin, writesPerMin int) *UsageMeter {
	m := &UsageMeter{limiters: map[UsageKind]*httpx.KeyedLimiter{}}
	if readsPerMin > 0 {
		m.limiters[UsageExternalDataRead] = httpx.NewKeyedLimiter(httpx.RateLimitConfig{
			RequestsPerWindow: readsPerMin, Window: time.Minute, Burst: readsPerMin,
		})
	}
	if writesPerMin > 0 {
		m.limiters[UsageExternalDataWrite] = httpx.NewKeyedLimiter(httpx.RateLimitConfig{
			RequestsPerWindow: writesPerMin, Window: time.Minute, Burst: writesPerMin,
		})
	}
	return m
}

// Check consumes one unit of kind for identity and clientID.
func (m *UsageMeter) Check(_ context.Context, kind UsageKind, identity, clientID string) error {
	l, ok := m.limiters[kind]
	if !ok {
		return nil
	}
	if !l.Allow(string(kind) + "|" + identity + "|" + clientID) {
		return ErrQuotaExceeded
	}
	return nil
}
