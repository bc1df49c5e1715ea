package fraud

import (
	"fmt"
	"math"
	"time"
)

// Default rule thresholds. All of them are overridable through RuleConfig;
// the legacy pipeline used both 1,000,000 (batch) and 100,000 (trigger) as
// the high-value cutoff, so deployments that want the trigger behaviour set
// HighValueThreshold explicitly.
const (
	DefaultHighValueThreshold = 1_000_000
	DefaultVelocityCount      = 3
	DefaultVelocityWindow     = 10 * time.Minute
	DefaultGeoDistanceKM      = 500
)

// DefaultSuspiciousCategories returns the default high-risk merchant set.
func DefaultSuspiciousCategories() map[string]bool {
	return map[string]bool{"Gambling": true, "Crypto": true}
}

// RuleConfig carries the thresholds for the built-in rules.
type RuleConfig struct {
	HighValueThreshold   float64
	VelocityCount        int
	VelocityWindow       time.Duration
	GeoDistanceKM        float64
	WindowCapacity       int
	SuspiciousCategories map[string]bool
}

// DefaultRuleConfig returns the canonical threshold set.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		HighValueThreshold:   DefaultHighValueThreshold,
		VelocityCount:        DefaultVelocityCount,
		VelocityWindow:       DefaultVelocityWindow,
		GeoDistanceKM:        DefaultGeoDistanceKM,
		WindowCapacity:       DefaultWindowCapacity,
		SuspiciousCategories: DefaultSuspiciousCategories(),
	}
}

// DefaultRules returns the built-in rules in their fixed evaluation order.
func DefaultRules(cfg RuleConfig) []Rule {
	return []Rule{
		&HighValueRule{Threshold: cfg.HighValueThreshold},
		&VelocityRule{Count: cfg.VelocityCount, Window: cfg.VelocityWindow},
		&GeoMismatchRule{MaxDistanceKM: cfg.GeoDistanceKM},
		&DeviceAnomalyRule{},
		&SuspiciousMerchantRule{Categories: cfg.SuspiciousCategories},
	}
}

// ---------------------------------------------------------------------------
// HighValueRule: amount strictly above threshold
// ---------------------------------------------------------------------------

type HighValueRule struct {
	Threshold float64
}

func (r *HighValueRule) ID() string { return RuleHighValue }

func (r *HighValueRule) Evaluate(txn *Transaction, _ *AccountWindow) *AlertDraft {
	if txn.Amount <= r.Threshold {
		return nil
	}
	return &AlertDraft{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("amount %.2f exceeds threshold %.2f", txn.Amount, r.Threshold),
		Severity: SeverityHigh,
		Score:    90,
	}
}

// ---------------------------------------------------------------------------
// VelocityRule: too many transactions inside the trailing window
// ---------------------------------------------------------------------------

type VelocityRule struct {
	Count  int           // fires once more than Count transactions land inside the window
	Window time.Duration // trailing window measured back from the current timestamp
}

func (r *VelocityRule) ID() string { return RuleVelocity }

func (r *VelocityRule) Evaluate(txn *Transaction, window *AccountWindow) *AlertDraft {
	// Only strictly-earlier history counts; the current transaction itself
	// is the one that exceeds the threshold. The cutoff is exclusive: an
	// entry exactly Window old has already slid out.
	recent := 0
	cutoff := txn.Timestamp.Add(-r.Window)
	for _, e := range window.Entries {
		if e.Timestamp.After(cutoff) {
			recent++
		}
	}
	if recent < r.Count {
		return nil
	}
	return &AlertDraft{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("%d transactions within %s", recent+1, r.Window),
		Severity: SeverityMedium,
		Score:    70,
	}
}

// ---------------------------------------------------------------------------
// GeoMismatchRule: implausible displacement from the most recent located txn
// ---------------------------------------------------------------------------

type GeoMismatchRule struct {
	MaxDistanceKM float64
}

func (r *GeoMismatchRule) ID() string { return RuleGeoMismatch }

func (r *GeoMismatchRule) Evaluate(txn *Transaction, window *AccountWindow) *AlertDraft {
	if !txn.HasGeo() {
		return nil
	}
	// Scan newest-first and stop at the first entry that has a location:
	// one geo alert per transaction at most.
	for i := len(window.Entries) - 1; i >= 0; i-- {
		e := window.Entries[i]
		if !e.HasGeo() {
			continue
		}
		km := haversineKM(*e.GeoLat, *e.GeoLng, *txn.GeoLat, *txn.GeoLng)
		if km <= r.MaxDistanceKM {
			return nil
		}
		return &AlertDraft{
			RuleID:   r.ID(),
			Reason:   fmt.Sprintf("%.1f km from previous transaction location", km),
			Severity: SeverityHigh,
			Score:    85,
		}
	}
	return nil
}

const earthRadiusKM = 6371

// haversineKM returns the great-circle distance between two coordinates.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ---------------------------------------------------------------------------
// DeviceAnomalyRule: device never seen before for an account with history
// ---------------------------------------------------------------------------

type DeviceAnomalyRule struct{}

func (r *DeviceAnomalyRule) ID() string { return RuleDeviceAnomaly }

func (r *DeviceAnomalyRule) Evaluate(txn *Transaction, window *AccountWindow) *AlertDraft {
	if window.Len() == 0 {
		return nil // first transaction has nothing to compare against
	}
	for _, e := range window.Entries {
		if e.DeviceID == txn.DeviceID {
			return nil
		}
	}
	return &AlertDraft{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("device %s not seen in recent history", txn.DeviceID),
		Severity: SeverityMedium,
		Score:    65,
	}
}

// ---------------------------------------------------------------------------
// SuspiciousMerchantRule: high-risk merchant category
// ---------------------------------------------------------------------------

type SuspiciousMerchantRule struct {
	Categories map[string]bool
}

func (r *SuspiciousMerchantRule) ID() string { return RuleSuspiciousMerchant }

func (r *SuspiciousMerchantRule) Evaluate(txn *Transaction, _ *AccountWindow) *AlertDraft {
	if !r.Categories[txn.MerchantCategory] {
		return nil
	}
	return &AlertDraft{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("high-risk merchant category %s", txn.MerchantCategory),
		Severity: SeverityHigh,
		Score:    80,
	}
}
