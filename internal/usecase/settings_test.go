package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

func TestSettingsServiceCreatesDefaultsOnFirstRead(t *testing.T) {
	h := newIdentityHarness(t)
	settings, err := h.settings.GetPrivacySettings(context.Background(), "user-1", domain.RequestContext{})
	if err != nil {
		t.Fatalf("GetPrivacySettings returned error: %v", err)
	}
	if settings.ProfileVisibility != domain.VisibilityPrivate || settings.DataRetentionMonths != 24 {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if len(h.dataAccess.events) != 1 || h.dataAccess.events[0].AccessType != domain.AccessRead {
		t.Fatalf("expected one read data-access event, got %+v", h.dataAccess.events)
	}
}

func TestSettingsServicePrivacyUpdateAuditsDiff(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	friends := domain.VisibilityFriends
	months := 36

	updated, err := h.settings.UpdatePrivacySettings(ctx, "user-1", domain.PrivacyPatch{
		ProfileVisibility:   &friends,
		DataRetentionMonths: &months,
	}, domain.RequestContext{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("UpdatePrivacySettings returned error: %v", err)
	}
	if updated.ProfileVisibility != domain.VisibilityFriends || updated.DataRetentionMonths != 36 {
		t.Fatalf("patch not applied: %+v", updated)
	}

	events := h.audits.ofType(domain.EventPrivacySettingChange)
	if len(events) != 1 {
		t.Fatalf("expected one privacy_setting_change event, got %d", len(events))
	}
	changes, ok := events[0].Metadata["changes"].(map[string]domain.FieldChange)
	if !ok {
		t.Fatalf("expected changes metadata, got %#v", events[0].Metadata)
	}
	vis := changes["profile_visibility"]
	if vis.From != "private" || vis.To != "friends" {
		t.Fatalf("unexpected profile_visibility change: %+v", vis)
	}
	if len(changes) != 2 {
		t.Fatalf("expected exactly two changed fields, got %v", changes)
	}
	if got := h.analytics.rows["user-1"].PrivacyChanges; got != 1 {
		t.Fatalf("expected privacy change counted once, got %d", got)
	}

	// Re-applying the same patch is a no-op and writes no audit event.
	if _, err := h.settings.UpdatePrivacySettings(ctx, "user-1", domain.PrivacyPatch{ProfileVisibility: &friends}, domain.RequestContext{}); err != nil {
		t.Fatalf("UpdatePrivacySettings returned error: %v", err)
	}
	if got := len(h.audits.ofType(domain.EventPrivacySettingChange)); got != 1 {
		t.Fatalf("expected no additional audit event, got %d", got)
	}
}

func TestSettingsServicePrivacyUpdateRejectsInvalidValues(t *testing.T) {
	h := newIdentityHarness(t)
	bogus := domain.Visibility("everyone")
	months := 500

	cases := map[string]domain.PrivacyPatch{
		"visibility": {WardrobeVisibility: &bogus},
		"retention":  {DataRetentionMonths: &months},
	}
	for name, patch := range cases {
		_, err := h.settings.UpdatePrivacySettings(context.Background(), "user-1", patch, domain.RequestContext{})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if len(h.privacy.rows) != 0 {
		t.Fatalf("expected no settings row to be written")
	}
}

func TestSettingsServiceSecurityUpdateClampsRanges(t *testing.T) {
	h := newIdentityHarness(t)
	timeout := 5
	sessions := 50

	updated, err := h.settings.UpdateSecuritySettings(context.Background(), "user-1", domain.SecurityPatch{
		SessionTimeoutMinutes: &timeout,
		MaxConcurrentSessions: &sessions,
	}, domain.RequestContext{})
	if err != nil {
		t.Fatalf("UpdateSecuritySettings returned error: %v", err)
	}
	if updated.SessionTimeoutMinutes != domain.MinSessionTimeoutMinutes {
		t.Fatalf("expected timeout clamped to %d, got %d", domain.MinSessionTimeoutMinutes, updated.SessionTimeoutMinutes)
	}
	if updated.MaxConcurrentSessions != domain.MaxConcurrentSessions {
		t.Fatalf("expected sessions clamped to %d, got %d", domain.MaxConcurrentSessions, updated.MaxConcurrentSessions)
	}
	if got := len(h.audits.ofType(domain.EventPrivacySettingChange)); got != 1 {
		t.Fatalf("expected one audit event for the security change, got %d", got)
	}
}
