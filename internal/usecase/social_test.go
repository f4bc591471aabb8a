package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

type memPosts struct {
	mu       sync.Mutex
	rows     map[string]domain.StylePost
	report   domain.ReconcileReport
	repaired []domain.CounterDrift
}

func (r *memPosts) Create(_ context.Context, post domain.StylePost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[post.ID] = post
	return nil
}

func (r *memPosts) Get(_ context.Context, id string) (*domain.StylePost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &post, nil
}

func (r *memPosts) ListFeed(context.Context, string, domain.FeedPage) ([]domain.StylePost, error) {
	return nil, errUnexpectedCall
}

func (r *memPosts) Delete(context.Context, string, string) error { return errUnexpectedCall }

func (r *memPosts) AdjustCounter(_ context.Context, postID string, counter domain.Counter, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.rows[postID]
	if !ok {
		return repository.ErrNotFound
	}
	switch counter {
	case domain.CounterLikes:
		post.LikesCount += delta
	case domain.CounterComments:
		post.CommentsCount += delta
	case domain.CounterShares:
		post.SharesCount += delta
	case domain.CounterSaves:
		post.SavesCount += delta
	}
	r.rows[postID] = post
	return nil
}

func (r *memPosts) Reconcile(context.Context, int) (domain.ReconcileReport, error) {
	return r.report, nil
}

func (r *memPosts) RepairCounters(_ context.Context, drifts []domain.CounterDrift) error {
	r.repaired = append(r.repaired, drifts...)
	return nil
}

type memEngagement struct {
	mu       sync.Mutex
	likes    map[string]bool
	saves    map[string]bool
	comments map[string]domain.Comment
	shares   []domain.Share
}

func newMemEngagement() *memEngagement {
	return &memEngagement{
		likes:    make(map[string]bool),
		saves:    make(map[string]bool),
		comments: make(map[string]domain.Comment),
	}
}

func (r *memEngagement) AddLike(_ context.Context, userID, postID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.likes[userID+":"+postID] {
		return domain.NewError(domain.KindConflict, "already_liked", "post is already liked")
	}
	r.likes[userID+":"+postID] = true
	return nil
}

func (r *memEngagement) RemoveLike(_ context.Context, userID, postID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + ":" + postID
	if !r.likes[key] {
		return false, nil
	}
	delete(r.likes, key)
	return true, nil
}

func (r *memEngagement) AddSave(_ context.Context, userID, postID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saves[userID+":"+postID] {
		return domain.NewError(domain.KindConflict, "already_saved", "post is already saved")
	}
	r.saves[userID+":"+postID] = true
	return nil
}

func (r *memEngagement) RemoveSave(context.Context, string, string) (bool, error) {
	return false, errUnexpectedCall
}

func (r *memEngagement) CreateComment(_ context.Context, c domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[c.ID] = c
	return nil
}

func (r *memEngagement) GetComment(_ context.Context, id string) (*domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

// DeleteComment removes the comment and its direct replies.
func (r *memEngagement) DeleteComment(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.comments[id]; !ok {
		return 0, repository.ErrNotFound
	}
	removed := 0
	for cid, c := range r.comments {
		if cid == id || (c.ParentID != nil && *c.ParentID == id) {
			delete(r.comments, cid)
			removed++
		}
	}
	return removed, nil
}

func (r *memEngagement) ListComments(context.Context, string, int) ([]domain.Comment, error) {
	return nil, errUnexpectedCall
}

func (r *memEngagement) CreateShare(_ context.Context, share domain.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shares = append(r.shares, share)
	return nil
}

type memNotifications struct {
	mu   sync.Mutex
	rows map[string]domain.Notification
}

// Create ignores a second row with the same id, like ON CONFLICT DO NOTHING.
func (r *memNotifications) Create(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[n.ID]; !ok {
		r.rows[n.ID] = n
	}
	return nil
}

func (r *memNotifications) List(_ context.Context, recipientID string, unreadOnly bool, _ domain.FeedPage) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.rows {
		if n.RecipientID == recipientID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotifications) MarkRead(_ context.Context, recipientID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.RecipientID != recipientID {
		return repository.ErrNotFound
	}
	n.Read = true
	n.ReadAt = &at
	r.rows[id] = n
	return nil
}

func (r *memNotifications) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for id, n := range r.rows {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			r.rows[id] = n
			changed++
		}
	}
	return changed, nil
}

func (r *memNotifications) forRecipient(recipientID string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.rows {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

type memCommunities struct {
	rows    map[string]domain.Community
	members map[string]bool
}

func (r *memCommunities) Create(_ context.Context, c domain.Community) error {
	r.rows[c.ID] = c
	return nil
}

func (r *memCommunities) Get(_ context.Context, id string) (*domain.Community, error) {
	c, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *memCommunities) List(context.Context, domain.FeedPage) ([]domain.Community, error) {
	return nil, errUnexpectedCall
}

func (r *memCommunities) AddMember(_ context.Context, communityID, userID string, _ time.Time) error {
	key := communityID + ":" + userID
	if r.members[key] {
		return domain.NewError(domain.KindConflict, "already_member", "already a member of this community")
	}
	r.members[key] = true
	return nil
}

func (r *memCommunities) RemoveMember(_ context.Context, communityID, userID string) (bool, error) {
	key := communityID + ":" + userID
	if !r.members[key] {
		return false, nil
	}
	delete(r.members, key)
	return true, nil
}

func (r *memCommunities) AdjustMembers(_ context.Context, communityID string, delta int) error {
	c, ok := r.rows[communityID]
	if !ok {
		return repository.ErrNotFound
	}
	c.MembersCount += delta
	r.rows[communityID] = c
	return nil
}

type memEvents struct {
	rows      map[string]domain.Event
	attendees map[string]bool
}

func (r *memEvents) Create(_ context.Context, e domain.Event) error {
	r.rows[e.ID] = e
	return nil
}

func (r *memEvents) Get(_ context.Context, id string) (*domain.Event, error) {
	e, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (r *memEvents) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r *memEvents) ListUpcoming(context.Context, time.Time, domain.FeedPage) ([]domain.Event, error) {
	return nil, errUnexpectedCall
}

func (r *memEvents) AddAttendee(_ context.Context, eventID, userID string, _ time.Time) error {
	key := eventID + ":" + userID
	if r.attendees[key] {
		return domain.NewError(domain.KindConflict, "already_attending", "already attending this event")
	}
	r.attendees[key] = true
	return nil
}

func (r *memEvents) IncrementAttendees(_ context.Context, eventID string) error {
	e, ok := r.rows[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	e.AttendeeCount++
	r.rows[eventID] = e
	return nil
}

type recordingAudit struct {
	messages []domain.AuditMessage
	err      error
}

func (r *recordingAudit) RecordAudit(_ context.Context, msg domain.AuditMessage) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

type socialHarness struct {
	clock         *testClock
	posts         *memPosts
	engagement    *memEngagement
	notifications *memNotifications
	communities   *memCommunities
	events        *memEvents
	audit         *recordingAudit
	service       *SocialService
}

func newSocialHarness() *socialHarness {
	h := &socialHarness{
		clock:         newTestClock(),
		posts:         &memPosts{rows: make(map[string]domain.StylePost)},
		engagement:    newMemEngagement(),
		notifications: &memNotifications{rows: make(map[string]domain.Notification)},
		communities:   &memCommunities{rows: make(map[string]domain.Community), members: make(map[string]bool)},
		events:        &memEvents{rows: make(map[string]domain.Event), attendees: make(map[string]bool)},
		audit:         &recordingAudit{},
	}
	cfg := config.ReconciliationSettings{DriftThreshold: 0.01, BatchSize: 500}
	h.service = NewSocialService(h.posts, h.engagement, h.notifications, h.communities, h.events, cfg, nil).
		WithTransactor(&passthroughTx{}).
		WithAudit(h.audit)
	h.service.WithClock(h.clock.Now)
	return h
}

func (h *socialHarness) post(t *testing.T, userID string) *domain.StylePost {
	t.Helper()
	post, err := h.service.CreatePost(context.Background(), userID, PostInput{Caption: "Monday linen"})
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}
	return post
}

func TestSocialServiceLikeIsIdempotent(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()
	post := h.post(t, "author")

	liked, err := h.service.Like(ctx, "fan", post.ID)
	if err != nil {
		t.Fatalf("Like returned error: %v", err)
	}
	if liked.LikesCount != 1 {
		t.Fatalf("expected one like, got %d", liked.LikesCount)
	}

	_, err = h.service.Like(ctx, "fan", post.ID)
	var de *domain.Error
	if !errors.As(err, &de) || de.Code != "already_liked" {
		t.Fatalf("expected already_liked, got %v", err)
	}
	if got := h.posts.rows[post.ID].LikesCount; got != 1 {
		t.Fatalf("expected the counter to stay at 1, got %d", got)
	}

	notes := h.notifications.forRecipient("author")
	if len(notes) != 1 || notes[0].Kind != domain.NotifyLike {
		t.Fatalf("expected one like notification for the author, got %+v", notes)
	}

	unliked, err := h.service.Unlike(ctx, "fan", post.ID)
	if err != nil {
		t.Fatalf("Unlike returned error: %v", err)
	}
	if unliked.LikesCount != 0 {
		t.Fatalf("expected no likes after unlike, got %d", unliked.LikesCount)
	}
	if _, err := h.service.Unlike(ctx, "fan", post.ID); !errors.Is(err, ErrLikeNotFound) {
		t.Fatalf("expected like not found, got %v", err)
	}
}

func TestSocialServiceSkipsSelfNotification(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()
	post := h.post(t, "author")

	if _, err := h.service.Like(ctx, "author", post.ID); err != nil {
		t.Fatalf("Like returned error: %v", err)
	}
	if _, err := h.service.Share(ctx, "author", post.ID, " Instagram ", ""); err != nil {
		t.Fatalf("Share returned error: %v", err)
	}
	if n := len(h.notifications.forRecipient("author")); n != 0 {
		t.Fatalf("expected no notifications for own engagement, got %d", n)
	}
	if len(h.engagement.shares) != 1 || h.engagement.shares[0].Platform != "instagram" {
		t.Fatalf("unexpected shares: %+v", h.engagement.shares)
	}
}

func TestSocialServicePrivatePostHidden(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()
	post, err := h.service.CreatePost(ctx, "author", PostInput{Caption: "draft", Visibility: domain.PostPrivate})
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}
	if _, err := h.service.Like(ctx, "fan", post.ID); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected private post to be hidden, got %v", err)
	}
	if _, err := h.service.GetPost(ctx, "author", post.ID); err != nil {
		t.Fatalf("author could not read own private post: %v", err)
	}
}

func TestSocialServiceComments(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()
	post := h.post(t, "author")
	other := h.post(t, "author")

	if _, err := h.service.Comment(ctx, "fan", post.ID, "   ", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected empty comment to be refused, got %v", err)
	}

	root, err := h.service.Comment(ctx, "fan", post.ID, " Love the colours ", nil)
	if err != nil {
		t.Fatalf("Comment returned error: %v", err)
	}
	if root.Body != "Love the colours" {
		t.Fatalf("expected trimmed body, got %q", root.Body)
	}
	if _, err := h.service.Comment(ctx, "fan", other.ID, "wrong thread", &root.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected parent on another post to be refused, got %v", err)
	}
	if _, err := h.service.Comment(ctx, "author", post.ID, "Thanks!", &root.ID); err != nil {
		t.Fatalf("reply returned error: %v", err)
	}
	if got := h.posts.rows[post.ID].CommentsCount; got != 2 {
		t.Fatalf("expected two comments counted, got %d", got)
	}

	if err := h.service.DeleteComment(ctx, "stranger", root.ID); !errors.Is(err, ErrNotCommentOwner) {
		t.Fatalf("expected stranger to be refused, got %v", err)
	}
	// The post owner may remove a fan's comment; the reply goes with it.
	if err := h.service.DeleteComment(ctx, "author", root.ID); err != nil {
		t.Fatalf("DeleteComment returned error: %v", err)
	}
	if got := h.posts.rows[post.ID].CommentsCount; got != 0 {
		t.Fatalf("expected comment counter back to 0, got %d", got)
	}
	if err := h.service.DeleteComment(ctx, "author", root.ID); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected comment not found, got %v", err)
	}
}

func TestSocialServiceRSVPRespectsCapacity(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()

	event, err := h.service.CreateEvent(ctx, "organizer", EventInput{
		Title:    "Thrift swap",
		StartsAt: h.clock.Now().Add(48 * time.Hour),
		Capacity: 1,
	})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}

	got, err := h.service.RSVP(ctx, "guest-1", event.ID)
	if err != nil {
		t.Fatalf("RSVP returned error: %v", err)
	}
	if got.AttendeeCount != 1 {
		t.Fatalf("expected one attendee, got %d", got.AttendeeCount)
	}
	if _, err := h.service.RSVP(ctx, "guest-2", event.ID); !errors.Is(err, ErrEventFull) {
		t.Fatalf("expected event_full, got %v", err)
	}
	notes := h.notifications.forRecipient("organizer")
	if len(notes) != 1 || notes[0].Kind != domain.NotifyEventRSVP {
		t.Fatalf("expected one rsvp notification, got %+v", notes)
	}

	if _, err := h.service.CreateEvent(ctx, "organizer", EventInput{Title: "x", StartsAt: h.clock.Now(), Capacity: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected negative capacity to be refused, got %v", err)
	}
}

func TestSocialServiceCommunityMembership(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()

	community, err := h.service.CreateCommunity(ctx, "owner", CommunityInput{Name: "Sustainable Style", Category: " Eco "})
	if err != nil {
		t.Fatalf("CreateCommunity returned error: %v", err)
	}
	if community.Category != "eco" || h.communities.rows[community.ID].MembersCount != 1 {
		t.Fatalf("unexpected community: %+v", h.communities.rows[community.ID])
	}

	joined, err := h.service.JoinCommunity(ctx, "member", community.ID)
	if err != nil {
		t.Fatalf("JoinCommunity returned error: %v", err)
	}
	if joined.MembersCount != 2 {
		t.Fatalf("expected two members, got %d", joined.MembersCount)
	}
	if _, err := h.service.JoinCommunity(ctx, "member", community.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate join to conflict, got %v", err)
	}

	if err := h.service.LeaveCommunity(ctx, "member", community.ID); err != nil {
		t.Fatalf("LeaveCommunity returned error: %v", err)
	}
	if err := h.service.LeaveCommunity(ctx, "member", community.ID); !errors.Is(err, ErrMembershipNotFound) {
		t.Fatalf("expected membership not found, got %v", err)
	}
	if got := h.communities.rows[community.ID].MembersCount; got != 1 {
		t.Fatalf("expected one member left, got %d", got)
	}
}

func TestSocialServicePublishNotificationIsIdempotent(t *testing.T) {
	h := newSocialHarness()
	ctx := context.Background()
	msg := domain.NotificationMessage{
		IdempotencyKey: "order-paid:TV-1001",
		RecipientID:    "buyer",
		Kind:           domain.NotifyOrderPaid,
		Title:          "Order confirmed",
		Message:        "Payment received",
		EntityType:     "order",
		EntityID:       "order-1",
	}

	for i := 0; i < 3; i++ {
		if err := h.service.PublishNotification(ctx, msg); err != nil {
			t.Fatalf("PublishNotification returned error: %v", err)
		}
	}
	notes := h.notifications.forRecipient("buyer")
	if len(notes) != 1 {
		t.Fatalf("expected redelivery to store once, got %d", len(notes))
	}

	if err := h.service.MarkNotificationRead(ctx, "someone-else", notes[0].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected foreign notification to be hidden, got %v", err)
	}
	if n, err := h.service.MarkAllNotificationsRead(ctx, "buyer"); err != nil || n != 1 {
		t.Fatalf("MarkAllNotificationsRead = %d, %v", n, err)
	}
	if err := h.service.PublishNotification(ctx, domain.NotificationMessage{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing recipient to be refused, got %v", err)
	}
}

func TestSocialServiceReconcileAlertsAboveThreshold(t *testing.T) {
	h := newSocialHarness()
	h.posts.report = domain.ReconcileReport{
		CountersChecked: 40,
		Drifts: []domain.CounterDrift{
			{PostID: "p1", Counter: domain.CounterLikes, Stored: 5, Actual: 3},
		},
	}

	report, err := h.service.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report["drifts"] != 1 || report["repaired"] != 1 || report["alerts"] != 1 {
		t.Fatalf("unexpected report: %v", report)
	}
	if len(h.posts.repaired) != 1 {
		t.Fatalf("expected drift repaired, got %+v", h.posts.repaired)
	}
	if len(h.audit.messages) != 1 || h.audit.messages[0].EventType != domain.EventSuspiciousActivity {
		t.Fatalf("expected one suspicious activity audit, got %+v", h.audit.messages)
	}
}

func TestSocialServiceReconcileRepairsQuietlyBelowThreshold(t *testing.T) {
	h := newSocialHarness()
	h.posts.report = domain.ReconcileReport{
		CountersChecked: 400,
		Drifts:          []domain.CounterDrift{{PostID: "p1", Counter: domain.CounterSaves, Stored: 1, Actual: 2}},
	}

	report, err := h.service.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report["repaired"] != 1 || report["alerts"] != 0 {
		t.Fatalf("unexpected report: %v", report)
	}
	if len(h.audit.messages) != 0 {
		t.Fatalf("expected no audit below threshold")
	}
}
