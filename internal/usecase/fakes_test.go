package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var errUnexpectedCall = errors.New("unexpected call")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]domain.User)}
}

func (r *memUsers) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, user.Username) {
			return domain.NewError(domain.KindConflict, "duplicate_username", "username is taken")
		}
		if strings.EqualFold(u.Email, user.Email) {
			return domain.NewError(domain.KindConflict, "duplicate_email", "email is registered")
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) UpdateProfile(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUsers) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.LastPasswordChange = changedAt
	r.users[id] = u
	return nil
}

func (r *memUsers) SetActive(_ context.Context, id string, active bool, deactivatedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	u.DeactivatedAt = deactivatedAt
	r.users[id] = u
	return nil
}

func (r *memUsers) RecordLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLogin = &at
	r.users[id] = u
	return nil
}

func (r *memUsers) DeleteDeactivatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, u := range r.users {
		if !u.IsActive && u.DeactivatedAt != nil && u.DeactivatedAt.Before(cutoff) {
			delete(r.users, id)
			n++
		}
	}
	return n, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]domain.Session)}
}

func (r *memSessions) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSessions) Touch(_ context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	s.LastSeenAt = at
	r.sessions[sessionID] = s
	return nil
}

func (r *memSessions) Revoke(_ context.Context, sessionID string, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.RevokedAt != nil {
		return repository.ErrNotFound
	}
	s.RevokedAt = &at
	s.RevokeReason = reason
	r.sessions[sessionID] = s
	return nil
}

func (r *memSessions) RevokeAllForUser(_ context.Context, userID string, reason string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &at
			s.RevokeReason = reason
			r.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (r *memSessions) ListActiveByUser(_ context.Context, userID string, at time.Time) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive(at, 0) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (r *memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessions) activeCount(userID string, at time.Time) int {
	active, _ := r.ListActiveByUser(context.Background(), userID, at)
	return len(active)
}

type memSecurity struct {
	mu       sync.Mutex
	rows     map[string]domain.SecuritySettings
	rowLocks map[string]*sync.Mutex
	// writeDelay widens the gap between reading and writing a row.
	writeDelay time.Duration
}

func newMemSecurity() *memSecurity {
	return &memSecurity{
		rows:     make(map[string]domain.SecuritySettings),
		rowLocks: make(map[string]*sync.Mutex),
	}
}

// GetForUpdate holds the user's row lock until the surrounding rowLockTx ends.
// Outside such a transaction the lock is released immediately.
func (r *memSecurity) GetForUpdate(ctx context.Context, defaults domain.SecuritySettings) (*domain.SecuritySettings, error) {
	r.mu.Lock()
	rowLock, ok := r.rowLocks[defaults.UserID]
	if !ok {
		rowLock = &sync.Mutex{}
		r.rowLocks[defaults.UserID] = rowLock
	}
	r.mu.Unlock()

	rowLock.Lock()
	if locks, ok := ctx.Value(txLocksKey{}).(*txLocks); ok {
		locks.hold(rowLock.Unlock)
	} else {
		rowLock.Unlock()
	}
	return r.GetOrCreate(ctx, defaults)
}

func (r *memSecurity) GetOrCreate(_ context.Context, defaults domain.SecuritySettings) (*domain.SecuritySettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[defaults.UserID]
	if !ok {
		row = defaults
		row.ID = uuid.NewString()
		r.rows[defaults.UserID] = row
	}
	return &row, nil
}

func (r *memSecurity) Update(_ context.Context, settings domain.SecuritySettings) error {
	if r.writeDelay > 0 {
		time.Sleep(r.writeDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[settings.UserID] = settings
	return nil
}

type memPrivacy struct {
	mu   sync.Mutex
	rows map[string]domain.PrivacySettings
}

func newMemPrivacy() *memPrivacy {
	return &memPrivacy{rows: make(map[string]domain.PrivacySettings)}
}

func (r *memPrivacy) GetOrCreate(_ context.Context, defaults domain.PrivacySettings) (*domain.PrivacySettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[defaults.UserID]
	if !ok {
		row = defaults
		row.ID = uuid.NewString()
		r.rows[defaults.UserID] = row
	}
	return &row, nil
}

func (r *memPrivacy) Update(_ context.Context, settings domain.PrivacySettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[settings.UserID] = settings
	return nil
}

func (r *memPrivacy) RetentionByUser(context.Context) (map[string]int, error) {
	return nil, errUnexpectedCall
}

type memAnalytics struct {
	mu   sync.Mutex
	rows map[string]domain.UserAnalytics
}

func newMemAnalytics() *memAnalytics {
	return &memAnalytics{rows: make(map[string]domain.UserAnalytics)}
}

func (r *memAnalytics) GetOrCreate(_ context.Context, defaults domain.UserAnalytics) (*domain.UserAnalytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[defaults.UserID]
	if !ok {
		row = defaults
		r.rows[defaults.UserID] = row
	}
	return &row, nil
}

func (r *memAnalytics) Increment(_ context.Context, userID string, delta domain.AnalyticsDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[userID]
	row.UserID = userID
	row.LoginCount += delta.Logins
	row.ExportsRequested += delta.Exports
	row.PrivacyChanges += delta.PrivacyChanges
	if delta.LoginAt != nil {
		row.LastLoginAt = delta.LoginAt
	}
	r.rows[userID] = row
	return nil
}

type memAudits struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	keys   map[string]struct{}
}

func newMemAudits() *memAudits {
	return &memAudits{keys: make(map[string]struct{})}
}

func (r *memAudits) Insert(_ context.Context, event domain.AuditEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.keys[event.IdempotencyKey]; dup {
		return false, nil
	}
	r.keys[event.IdempotencyKey] = struct{}{}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	r.events = append(r.events, event)
	return true, nil
}

func (r *memAudits) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.UserID == nil || *e.UserID != filter.UserID || e.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.Severity != nil && e.Severity != *filter.Severity {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memAudits) CountByType(_ context.Context, userID string, eventType domain.AuditEventType, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.UserID != nil && *e.UserID == userID && e.EventType == eventType && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAudits) Resolve(_ context.Context, userID, eventID, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.ID == eventID && e.UserID != nil && *e.UserID == userID {
			r.events[i].Resolved = true
			r.events[i].ResolutionNotes = notes
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memAudits) DeleteExpired(_ context.Context, now time.Time, defaultRetentionMonths int, criticalBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.AddDate(0, -defaultRetentionMonths, 0)
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		expired := e.CreatedAt.Before(cutoff)
		if e.Severity == domain.SeverityCritical {
			expired = e.CreatedAt.Before(criticalBefore)
		}
		if expired {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

func (r *memAudits) ofType(eventType domain.AuditEventType) []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memDataAccess struct {
	mu     sync.Mutex
	events []domain.DataAccessEvent
}

func (r *memDataAccess) Insert(_ context.Context, event domain.DataAccessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memDataAccess) List(_ context.Context, filter domain.DataAccessFilter) ([]domain.DataAccessEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DataAccessEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.UserID != filter.UserID || e.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.DataType != "" && e.DataType != filter.DataType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memDataAccess) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.CreatedAt.AddDate(0, 0, e.RetentionDays).Before(now) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (fakeHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

type fakePolicy struct{}

func (fakePolicy) Validate(password string, _ ...string) error {
	if len(password) < 8 {
		return domain.Validation("password", "must be at least 8 characters")
	}
	return nil
}

func (fakePolicy) Strength(string, ...string) int { return 3 }

type fakeTokens struct {
	mu sync.Mutex
	n  int
}

func (g *fakeTokens) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "token-" + uuid.NewString()[:8], nil
}

func (g *fakeTokens) Hash(token string) string { return "h:" + token }

type recordingInvalidations struct {
	mu     sync.Mutex
	events []domain.Invalidation
}

func (p *recordingInvalidations) PublishInvalidation(_ context.Context, event domain.Invalidation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingInvalidations) count(artifact domain.Artifact) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Artifact == artifact {
			n++
		}
	}
	return n
}

type memRateLimits struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newMemRateLimits() *memRateLimits {
	return &memRateLimits{attempts: make(map[string][]time.Time)}
}

func (s *memRateLimits) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.attempts[identifier][:0]
	for _, at := range s.attempts[identifier] {
		if at.After(reference.Add(-window)) {
			kept = append(kept, at)
		}
	}
	s.attempts[identifier] = kept
	return nil
}

func (s *memRateLimits) CountAttempts(_ context.Context, identifier string, _ time.Duration, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts[identifier]), nil
}

func (s *memRateLimits) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[identifier] = append(s.attempts[identifier], at)
	return nil
}

func (s *memRateLimits) OldestAttempt(_ context.Context, identifier string, _ time.Duration, _ time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attempts[identifier]) == 0 {
		return time.Time{}, false, nil
	}
	return s.attempts[identifier][0], true, nil
}

// passthroughTx runs fn inline; the in-memory repositories have no rollback.
type txLocksKey struct{}

type txLocks struct {
	mu      sync.Mutex
	release []func()
}

func (l *txLocks) hold(release func()) {
	l.mu.Lock()
	l.release = append(l.release, release)
	l.mu.Unlock()
}

// rowLockTx releases the row locks taken during fn once fn returns, the way a
// commit or rollback releases SELECT ... FOR UPDATE locks.
type rowLockTx struct{}

func (rowLockTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txLocksKey{}).(*txLocks); ok {
		return fn(ctx)
	}
	locks := &txLocks{}
	defer func() {
		for i := len(locks.release) - 1; i >= 0; i-- {
			locks.release[i]()
		}
	}()
	return fn(context.WithValue(ctx, txLocksKey{}, locks))
}

type passthroughTx struct{ calls int }

func (t *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// identityHarness wires the identity services over in-memory repositories.
type identityHarness struct {
	clock         *testClock
	users         *memUsers
	sessions      *memSessions
	security      *memSecurity
	privacy       *memPrivacy
	analytics     *memAnalytics
	audits        *memAudits
	dataAccess    *memDataAccess
	invalidations *recordingInvalidations

	audit    *AuditService
	auth     *AuthService
	settings *SettingsService
	account  *AccountService
}

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		Identity: config.IdentitySettings{
			TokenTTL:            24 * time.Hour,
			LockoutThreshold:    5,
			LockoutDuration:     30 * time.Minute,
			SuspiciousWindow:    time.Hour,
			SuspiciousThreshold: 3,
		},
		RateLimit: config.RateLimitSettings{
			WindowDuration:      15 * time.Minute,
			LoginMaxAttempts:    20,
			RegisterMaxAttempts: 3,
			RefreshMaxAttempts:  10,
		},
	}
}

func newIdentityHarness(t *testing.T) *identityHarness {
	t.Helper()
	h := &identityHarness{
		clock:         newTestClock(),
		users:         newMemUsers(),
		sessions:      newMemSessions(),
		security:      newMemSecurity(),
		privacy:       newMemPrivacy(),
		analytics:     newMemAnalytics(),
		audits:        newMemAudits(),
		dataAccess:    &memDataAccess{},
		invalidations: &recordingInvalidations{},
	}

	h.audit = NewAuditService(h.audits, h.dataAccess, nil)
	h.audit.WithClock(h.clock.Now)

	auth, err := NewAuthService(testAppConfig(), h.users, h.sessions, h.security, fakeHasher{}, fakePolicy{}, &fakeTokens{}, h.audit, nil)
	if err != nil {
		t.Fatalf("NewAuthService returned error: %v", err)
	}
	auth.WithClock(h.clock.Now)
	auth.WithTransactor(&passthroughTx{}).
		WithRateLimits(newMemRateLimits()).
		WithInvalidations(h.invalidations).
		WithAnalytics(h.analytics)
	h.auth = auth

	h.settings = NewSettingsService(h.privacy, h.security, h.audit, nil).WithAnalytics(h.analytics)
	h.settings.WithClock(h.clock.Now)

	h.account = NewAccountService(h.users, h.sessions, h.audit, nil).WithInvalidations(h.invalidations)
	h.account.WithClock(h.clock.Now)
	return h
}

func (h *identityHarness) register(t *testing.T, username, password string) domain.User {
	t.Helper()
	res, err := h.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register(%s) returned error: %v", username, err)
	}
	return res.User
}

func (h *identityHarness) login(username, password string) (*LoginResult, error) {
	return h.auth.Login(context.Background(), LoginInput{
		Identifier: username,
		Password:   password,
		Context:    domain.RequestContext{IPAddress: "10.0.0.1", UserAgent: "test"},
	})
}
