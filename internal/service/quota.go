package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/platform/supplier"
)

// quotaWarnRemaining is the floor below which remaining API quota is reported
// as critical.
const quotaWarnRemaining = 100

// QuotaEntry is one endpoint's API quota as reported by the supplier.
type QuotaEntry struct {
	Endpoint  string `json:"endpoint"`
	Used      int64  `json:"used"`
	Total     int64  `json:"total"`
	Remaining int64  `json:"remaining"`
}

// QuotaStatus is the parsed supplier quota report.
type QuotaStatus struct {
	Entries  []QuotaEntry `json:"entries"`
	Critical bool         `json:"critical"`
	// Raw is set only when no known shape matched, so operators still see
	// what the supplier returned.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// QuotaService reads supplier API quota from the account-settings endpoint.
// The supplier has changed the shape of this payload more than once, so
// parsing tries each known shape and degrades to the raw payload instead of
// failing.
type QuotaService struct {
	supplier supplier.API
	alerter  Alerter
}

// NewQuotaService creates the quota checker.
func NewQuotaService(sup supplier.API, alerter Alerter) *QuotaService {
	return &QuotaService{supplier: sup, alerter: alerter}
}

// Check fetches and parses the current quota, alerting when any endpoint is
// near exhaustion.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *QuotaStatus: parsed entries, or the raw payload when no shape matched.
//   - error: non-nil only if the settings fetch itself fails.
func (s *QuotaService) Check(ctx context.Context) (*QuotaStatus, error) {
	raw, err := s.supplier.GetAccountSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch account settings: %w", err)
	}

	status := parseQuota(raw)
	if status.Raw != nil {
		logger.CtxWarn(ctx, "account settings did not match any known quota shape (%d bytes)", len(status.Raw))
	}

	for _, e := range status.Entries {
		if e.Remaining < quotaWarnRemaining {
			status.Critical = true
			s.alerter.Critical(ctx, "supplier API quota low",
				fmt.Sprintf("endpoint %s: %d of %d remaining", e.Endpoint, e.Remaining, e.Total))
		}
	}
	return status, nil
}

// settingsShapeA: {"quotas": [{"api": "...", "used": n, "limit": n}]}
type settingsShapeA struct {
	Quotas []struct {
		API   string `json:"api"`
		Used  int64  `json:"used"`
		Limit int64  `json:"limit"`
	} `json:"quotas"`
}

// settingsShapeB: {"quotaLimits": {"<endpoint>": {"used": n, "total": n}}}
type settingsShapeB struct {
	QuotaLimits map[string]struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"quotaLimits"`
}

// settingsShapeC: flat {"apiUsed": n, "apiTotal": n}
type settingsShapeC struct {
	APIUsed  int64 `json:"apiUsed"`
	APITotal int64 `json:"apiTotal"`
}

// parseQuota tries each known account-settings shape in order. Shapes that
// decode but carry no quota data are treated as misses.
func parseQuota(raw json.RawMessage) *QuotaStatus {
	var a settingsShapeA
	if err := json.Unmarshal(raw, &a); err == nil && len(a.Quotas) > 0 {
		status := &QuotaStatus{}
		for _, q := range a.Quotas {
			status.Entries = append(status.Entries, QuotaEntry{
				Endpoint:  q.API,
				Used:      q.Used,
				Total:     q.Limit,
				Remaining: q.Limit - q.Used,
			})
		}
		return status
	}

	var b settingsShapeB
	if err := json.Unmarshal(raw, &b); err == nil && len(b.QuotaLimits) > 0 {
		status := &QuotaStatus{}
		for endpoint, q := range b.QuotaLimits {
			status.Entries = append(status.Entries, QuotaEntry{
				Endpoint:  endpoint,
				Used:      q.Used,
				Total:     q.Total,
				Remaining: q.Total - q.Used,
			})
		}
		return status
	}

	var c settingsShapeC
	if err := json.Unmarshal(raw, &c); err == nil && c.APITotal > 0 {
		return &QuotaStatus{Entries: []QuotaEntry{{
			Endpoint:  "api",
			Used:      c.APIUsed,
			Total:     c.APITotal,
			Remaining: c.APITotal - c.APIUsed,
		}}}
	}

	return &QuotaStatus{Raw: raw}
}
