package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
)

func TestAuditServiceRecordAuditIsIdempotent(t *testing.T) {
	h := newIdentityHarness(t)
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg, "identity")
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}
	h.audit.WithMetrics(metrics)

	userID := "user-1"
	msg := domain.AuditMessage{
		IdempotencyKey: "social-reconcile-1",
		UserID:         &userID,
		EventType:      domain.EventSuspiciousActivity,
		Severity:       domain.SeverityWarning,
		Description:    "counter drift",
		Source:         "social",
	}
	for i := 0; i < 3; i++ {
		if err := h.audit.RecordAudit(context.Background(), msg); err != nil {
			t.Fatalf("RecordAudit returned error: %v", err)
		}
	}

	if got := len(h.audits.events); got != 1 {
		t.Fatalf("expected one stored event, got %d", got)
	}
	if h.audits.events[0].CreatedAt.IsZero() {
		t.Fatalf("expected the occurrence time to be filled")
	}
	if got := counterTotal(t, reg, "vanity_audit_events_total"); got != 1 {
		t.Fatalf("expected metric 1, got %v", got)
	}
}

func TestAuditServiceRecordAuditValidates(t *testing.T) {
	h := newIdentityHarness(t)
	err := h.audit.RecordAudit(context.Background(), domain.AuditMessage{
		IdempotencyKey: "k",
		EventType:      "made_up",
		Severity:       domain.SeverityInfo,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuditServiceListAuditWindowAndSeverity(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	userID := "user-1"

	record := func(key string, sev domain.Severity, at time.Time) {
		t.Helper()
		err := h.audit.RecordAudit(ctx, domain.AuditMessage{
			IdempotencyKey: key,
			UserID:         &userID,
			EventType:      domain.EventLoginFailed,
			Severity:       sev,
			OccurredAt:     at,
		})
		if err != nil {
			t.Fatalf("RecordAudit returned error: %v", err)
		}
	}
	now := h.clock.Now()
	record("old", domain.SeverityWarning, now.Add(-40*24*time.Hour))
	record("recent-info", domain.SeverityInfo, now.Add(-2*24*time.Hour))
	record("recent-warning", domain.SeverityWarning, now.Add(-time.Hour))

	log, err := h.audit.ListAudit(ctx, userID, 0, "", domain.RequestContext{})
	if err != nil {
		t.Fatalf("ListAudit returned error: %v", err)
	}
	if log.Summary.TotalEvents != 2 || log.Summary.PeriodDays != domain.DefaultAuditWindowDays {
		t.Fatalf("unexpected summary: %+v", log.Summary)
	}

	log, err = h.audit.ListAudit(ctx, userID, 90, "WARNING", domain.RequestContext{})
	if err != nil {
		t.Fatalf("ListAudit returned error: %v", err)
	}
	if log.Summary.TotalEvents != 2 || log.Summary.BySeverity[domain.SeverityWarning] != 2 {
		t.Fatalf("unexpected filtered summary: %+v", log.Summary)
	}

	if _, err := h.audit.ListAudit(ctx, userID, 91, "", domain.RequestContext{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for 91 days, got %v", err)
	}
	if _, err := h.audit.ListAudit(ctx, userID, 7, "loud", domain.RequestContext{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown severity, got %v", err)
	}

	var reads int
	for _, e := range h.dataAccess.events {
		if e.DataType == dataTypeAuditLog {
			reads++
		}
	}
	if reads != 2 {
		t.Fatalf("expected two audit-log reads recorded, got %d", reads)
	}
}

func TestAuditServiceResolveOnlyOwnEvents(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	userID := "user-1"
	if err := h.audit.RecordAudit(ctx, domain.AuditMessage{
		IdempotencyKey: "k1",
		UserID:         &userID,
		EventType:      domain.EventSuspiciousActivity,
		Severity:       domain.SeverityWarning,
	}); err != nil {
		t.Fatalf("RecordAudit returned error: %v", err)
	}
	eventID := h.audits.events[0].ID

	if err := h.audit.Resolve(ctx, "someone-else", eventID, "not me"); !errors.Is(err, ErrAuditEventNotFound) {
		t.Fatalf("expected not found for a foreign event, got %v", err)
	}
	if err := h.audit.Resolve(ctx, userID, eventID, " it was me "); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !h.audits.events[0].Resolved || h.audits.events[0].ResolutionNotes != "it was me" {
		t.Fatalf("event not resolved: %+v", h.audits.events[0])
	}
}

// counterTotal sums every series of the named counter family.
func counterTotal(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
