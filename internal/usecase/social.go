package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	ErrPostNotFound         = domain.NotFound("post")
	ErrCommentNotFound      = domain.NotFound("comment")
	ErrLikeNotFound         = domain.NotFound("like")
	ErrSaveNotFound         = domain.NotFound("save")
	ErrNotificationNotFound = domain.NotFound("notification")
	ErrCommunityNotFound    = domain.NotFound("community")
	ErrMembershipNotFound   = domain.NotFound("membership")
	ErrEventNotFound        = domain.NotFound("event")

	// ErrEventFull indicates the event reached its capacity.
	ErrEventFull = domain.NewError(domain.KindConflict, "event_full", "event has reached its capacity")
	// ErrNotCommentOwner indicates the caller may not delete the comment.
	ErrNotCommentOwner = domain.NewError(domain.KindForbidden, "not_comment_owner", "only the author or the post owner can delete a comment")
)

const (
	maxCommentLength       = 1000
	defaultCommentsPage    = 50
	defaultReconcileBatch  = 500
	defaultDriftThreshold  = 0.01
	notificationKeyPrefix  = "notification:"
	auditSourceSocial      = config.ServiceSocial
	reconcileIdempotencyNS = "reconcile:"
)

// PostInput is the payload for a new post.
type PostInput struct {
	Caption    string
	ImageURL   string
	OutfitID   *string
	Tags       []string
	Visibility domain.PostVisibility
}

// CommunityInput is the payload for a new community.
type CommunityInput struct {
	Name        string
	Description string
	Category    string
	IsPrivate   bool
}

// EventInput is the payload for a new event.
type EventInput struct {
	CommunityID *string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      *time.Time
	Capacity    int
}

// SocialService owns posts, engagement, notifications, communities and events.
// Engagement rows, their post counters and the owner's notification are written
// in one transaction.
type SocialService struct {
	posts          port.PostRepository
	engagement     port.EngagementRepository
	notifications  port.NotificationRepository
	communities    port.CommunityRepository
	events         port.EventRepository
	tx             port.Transactor
	audit          port.AuditRecorder
	metrics        *telemetry.Metrics
	driftThreshold float64
	reconcileBatch int
	logger         *zap.Logger
	now            func() time.Time
}

// NewSocialService constructs a SocialService.
func NewSocialService(
	posts port.PostRepository,
	engagement port.EngagementRepository,
	notifications port.NotificationRepository,
	communities port.CommunityRepository,
	events port.EventRepository,
	cfg config.ReconciliationSettings,
	logger *zap.Logger,
) *SocialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.DriftThreshold
	if threshold <= 0 {
		threshold = defaultDriftThreshold
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &SocialService{
		posts:          posts,
		engagement:     engagement,
		notifications:  notifications,
		communities:    communities,
		events:         events,
		driftThreshold: threshold,
		reconcileBatch: batch,
		logger:         logger,
		now:            utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SocialService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes engagement writes atomic.
func (s *SocialService) WithTransactor(tx port.Transactor) *SocialService {
	s.tx = tx
	return s
}

// WithAudit sends reconciliation alerts to the identity audit sink.
func (s *SocialService) WithAudit(recorder port.AuditRecorder) *SocialService {
	s.audit = recorder
	return s
}

// WithMetrics counts detected counter drift.
func (s *SocialService) WithMetrics(m *telemetry.Metrics) *SocialService {
	s.metrics = m
	return s
}

// CreatePost publishes a post. Visibility defaults to public.
func (s *SocialService) CreatePost(ctx context.Context, userID string, in PostInput) (*domain.StylePost, error) {
	now := s.now()
	post := domain.StylePost{
		ID:         uuid.NewString(),
		UserID:     userID,
		Caption:    strings.TrimSpace(in.Caption),
		ImageURL:   strings.TrimSpace(in.ImageURL),
		OutfitID:   in.OutfitID,
		Tags:       in.Tags,
		Visibility: in.Visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if post.Visibility == "" {
		post.Visibility = domain.PostPublic
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &post, nil
}

// Feed returns posts visible to the viewer, newest first.
func (s *SocialService) Feed(ctx context.Context, viewerID string, page domain.FeedPage) ([]domain.StylePost, error) {
	posts, err := s.posts.ListFeed(ctx, viewerID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	return posts, nil
}

// GetPost returns a post. Private posts are only visible to their author.
func (s *SocialService) GetPost(ctx context.Context, viewerID, id string) (*domain.StylePost, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Visibility == domain.PostPrivate && post.UserID != viewerID {
		return nil, ErrPostNotFound
	}
	return post, nil
}

func (s *SocialService) loadPost(ctx context.Context, id string) (*domain.StylePost, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// DeletePost removes one of the user's posts.
func (s *SocialService) DeletePost(ctx context.Context, userID, id string) error {
	if err := s.posts.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPostNotFound
		}
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// engage runs write, adjusts counter by delta and notifies the post owner, all
// in one transaction. It returns the post as it stands after the write.
func (s *SocialService) engage(ctx context.Context, userID, postID string, counter domain.Counter, delta int, kind domain.NotificationKind, write func(ctx context.Context, post *domain.StylePost) error) (*domain.StylePost, error) {
	var result *domain.StylePost
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		post, err := s.GetPost(ctx, userID, postID)
		if err != nil {
			return err
		}
		if err := write(ctx, post); err != nil {
			return err
		}
		if err := s.posts.AdjustCounter(ctx, postID, counter, delta); err != nil {
			return fmt.Errorf("adjust %s: %w", counter, err)
		}
		if kind != "" {
			if err := s.notify(ctx, post.UserID, userID, kind, "post", post.ID); err != nil {
				return err
			}
		}
		result, err = s.loadPost(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// notify writes a notification unless the actor is the recipient.
func (s *SocialService) notify(ctx context.Context, recipientID, actorID string, kind domain.NotificationKind, entityType, entityID string) error {
	if recipientID == actorID {
		return nil
	}
	title, message := notificationText(kind)
	sender := actorID
	n := domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    &sender,
		Kind:        kind,
		Title:       title,
		Message:     message,
		EntityType:  entityType,
		EntityID:    entityID,
		CreatedAt:   s.now(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func notificationText(kind domain.NotificationKind) (string, string) {
	switch kind {
	case domain.NotifyLike:
		return "New like", "Someone liked your post"
	case domain.NotifyComment:
		return "New comment", "Someone commented on your post"
	case domain.NotifyShare:
		return "Post shared", "Someone shared your post"
	case domain.NotifyCommunityJoin:
		return "New member", "Someone joined your community"
	case domain.NotifyEventRSVP:
		return "New RSVP", "Someone is attending your event"
	default:
		return "Notification", ""
	}
}

// Like records a like. A second like by the same user fails with already_liked.
func (s *SocialService) Like(ctx context.Context, userID, postID string) (*domain.StylePost, error) {
	return s.engage(ctx, userID, postID, domain.CounterLikes, 1, domain.NotifyLike, func(ctx context.Context, _ *domain.StylePost) error {
		return s.engagement.AddLike(ctx, userID, postID, s.now())
	})
}

// Unlike removes a like.
func (s *SocialService) Unlike(ctx context.Context, userID, postID string) (*domain.StylePost, error) {
	return s.engage(ctx, userID, postID, domain.CounterLikes, -1, "", func(ctx context.Context, _ *domain.StylePost) error {
		removed, err := s.engagement.RemoveLike(ctx, userID, postID)
		if err != nil {
			return fmt.Errorf("remove like: %w", err)
		}
		if !removed {
			return ErrLikeNotFound
		}
		return nil
	})
}

// Save bookmarks a post. A second save fails with already_saved.
func (s *SocialService) Save(ctx context.Context, userID, postID string) (*domain.StylePost, error) {
	return s.engage(ctx, userID, postID, domain.CounterSaves, 1, "", func(ctx context.Context, _ *domain.StylePost) error {
		return s.engagement.AddSave(ctx, userID, postID, s.now())
	})
}

// Unsave removes a bookmark.
func (s *SocialService) Unsave(ctx context.Context, userID, postID string) (*domain.StylePost, error) {
	return s.engage(ctx, userID, postID, domain.CounterSaves, -1, "", func(ctx context.Context, _ *domain.StylePost) error {
		removed, err := s.engagement.RemoveSave(ctx, userID, postID)
		if err != nil {
			return fmt.Errorf("remove save: %w", err)
		}
		if !removed {
			return ErrSaveNotFound
		}
		return nil
	})
}

// Comment adds a comment. A parent comment must belong to the same post.
func (s *SocialService) Comment(ctx context.Context, userID, postID, body string, parentID *string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.Validation("content", "is required")
	}
	if len(body) > maxCommentLength {
		return nil, domain.Validation("content", "must be at most %d characters", maxCommentLength)
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}

	comment := domain.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		ParentID:  parentID,
		Body:      body,
		CreatedAt: s.now(),
	}
	_, err := s.engage(ctx, userID, postID, domain.CounterComments, 1, domain.NotifyComment, func(ctx context.Context, _ *domain.StylePost) error {
		if parentID != nil {
			parent, err := s.engagement.GetComment(ctx, *parentID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrCommentNotFound
				}
				return fmt.Errorf("get parent comment: %w", err)
			}
			if parent.PostID != postID {
				return domain.Validation("parent_id", "must belong to the same post")
			}
		}
		return s.engagement.CreateComment(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment and its replies. The comment author and the
// post owner may delete.
func (s *SocialService) DeleteComment(ctx context.Context, userID, commentID string) error {
	return withinTx(ctx, s.tx, func(ctx context.Context) error {
		comment, err := s.engagement.GetComment(ctx, commentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCommentNotFound
			}
			return fmt.Errorf("get comment: %w", err)
		}
		post, err := s.loadPost(ctx, comment.PostID)
		if err != nil {
			return err
		}
		if comment.UserID != userID && post.UserID != userID {
			return ErrNotCommentOwner
		}
		removed, err := s.engagement.DeleteComment(ctx, commentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCommentNotFound
			}
			return fmt.Errorf("delete comment: %w", err)
		}
		return s.posts.AdjustCounter(ctx, post.ID, domain.CounterComments, -removed)
	})
}

// ListComments returns a post's comments in posting order.
func (s *SocialService) ListComments(ctx context.Context, viewerID, postID string, limit int) ([]domain.Comment, error) {
	if _, err := s.GetPost(ctx, viewerID, postID); err != nil {
		return nil, err
	}
	comments, err := s.engagement.ListComments(ctx, postID, pageLimit(limit, defaultCommentsPage, 200))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Share records a share of the post to a platform.
func (s *SocialService) Share(ctx context.Context, userID, postID, platform, message string) (*domain.Share, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		platform = "internal"
	}
	share := domain.Share{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Platform:  platform,
		Message:   strings.TrimSpace(message),
		CreatedAt: s.now(),
	}
	_, err := s.engage(ctx, userID, postID, domain.CounterShares, 1, domain.NotifyShare, func(ctx context.Context, _ *domain.StylePost) error {
		return s.engagement.CreateShare(ctx, share)
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// Notifications lists the user's notifications, newest first.
func (s *SocialService) Notifications(ctx context.Context, userID string, unreadOnly bool, page domain.FeedPage) ([]domain.Notification, error) {
	list, err := s.notifications.List(ctx, userID, unreadOnly, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// MarkNotificationRead flags one notification as read.
func (s *SocialService) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := s.notifications.MarkRead(ctx, userID, id, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification and returns how many changed.
func (s *SocialService) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

// PublishNotification stores a notification sent by another service, making
// the service the sink behind the notification topic. The id is derived from
// the idempotency key so redelivery stores it once.
func (s *SocialService) PublishNotification(ctx context.Context, msg domain.NotificationMessage) error {
	if strings.TrimSpace(msg.RecipientID) == "" {
		return domain.Validation("recipient_id", "is required")
	}
	if msg.IdempotencyKey == "" {
		msg.IdempotencyKey = ksuid.New().String()
	}
	if msg.Kind == "" {
		msg.Kind = domain.NotifySystem
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = s.now()
	}
	n := msg.Notification()
	n.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(notificationKeyPrefix+msg.IdempotencyKey)).String()
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// CreateCommunity creates a community with its owner as the first member.
func (s *SocialService) CreateCommunity(ctx context.Context, ownerID string, in CommunityInput) (*domain.Community, error) {
	community := domain.Community{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Category:     strings.ToLower(strings.TrimSpace(in.Category)),
		OwnerID:      ownerID,
		IsPrivate:    in.IsPrivate,
		MembersCount: 1,
		CreatedAt:    s.now(),
	}
	if err := community.Validate(); err != nil {
		return nil, err
	}
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		stored := community
		stored.MembersCount = 0
		if err := s.communities.Create(ctx, stored); err != nil {
			return fmt.Errorf("create community: %w", err)
		}
		if err := s.communities.AddMember(ctx, community.ID, ownerID, community.CreatedAt); err != nil {
			return fmt.Errorf("add owner: %w", err)
		}
		return s.communities.AdjustMembers(ctx, community.ID, 1)
	})
	if err != nil {
		return nil, err
	}
	return &community, nil
}

// ListCommunities pages through communities.
func (s *SocialService) ListCommunities(ctx context.Context, page domain.FeedPage) ([]domain.Community, error) {
	list, err := s.communities.List(ctx, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return list, nil
}

// GetCommunity returns a community.
func (s *SocialService) GetCommunity(ctx context.Context, id string) (*domain.Community, error) {
	community, err := s.communities.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, fmt.Errorf("get community: %w", err)
	}
	return community, nil
}

// JoinCommunity adds the user as a member and notifies the owner.
func (s *SocialService) JoinCommunity(ctx context.Context, userID, communityID string) (*domain.Community, error) {
	var result *domain.Community
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		community, err := s.GetCommunity(ctx, communityID)
		if err != nil {
			return err
		}
		if err := s.communities.AddMember(ctx, communityID, userID, s.now()); err != nil {
			return err
		}
		if err := s.communities.AdjustMembers(ctx, communityID, 1); err != nil {
			return fmt.Errorf("adjust members: %w", err)
		}
		if err := s.notify(ctx, community.OwnerID, userID, domain.NotifyCommunityJoin, "community", communityID); err != nil {
			return err
		}
		result, err = s.GetCommunity(ctx, communityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LeaveCommunity removes the user's membership.
func (s *SocialService) LeaveCommunity(ctx context.Context, userID, communityID string) error {
	return withinTx(ctx, s.tx, func(ctx context.Context) error {
		if _, err := s.GetCommunity(ctx, communityID); err != nil {
			return err
		}
		removed, err := s.communities.RemoveMember(ctx, communityID, userID)
		if err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		if !removed {
			return ErrMembershipNotFound
		}
		return s.communities.AdjustMembers(ctx, communityID, -1)
	})
}

// CreateEvent schedules an event, optionally inside a community.
func (s *SocialService) CreateEvent(ctx context.Context, organizerID string, in EventInput) (*domain.Event, error) {
	event := domain.Event{
		ID:          uuid.NewString(),
		CommunityID: in.CommunityID,
		OrganizerID: organizerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt,
		Capacity:    in.Capacity,
		CreatedAt:   s.now(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.CommunityID != nil {
		if _, err := s.GetCommunity(ctx, *event.CommunityID); err != nil {
			return nil, err
		}
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &event, nil
}

// ListEvents returns upcoming events in start order.
func (s *SocialService) ListEvents(ctx context.Context, page domain.FeedPage) ([]domain.Event, error) {
	list, err := s.events.ListUpcoming(ctx, s.now(), page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list, nil
}

// GetEvent returns an event.
func (s *SocialService) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	event, err := s.events.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// RSVP registers the user for an event. The event row is locked so the
// capacity check and the attendee increment see the same count.
func (s *SocialService) RSVP(ctx context.Context, userID, eventID string) (*domain.Event, error) {
	var result domain.Event
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		event, err := s.events.GetForUpdate(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("lock event: %w", err)
		}
		if !event.HasCapacity() {
			return ErrEventFull
		}
		if err := s.events.AddAttendee(ctx, eventID, userID, s.now()); err != nil {
			return err
		}
		if err := s.events.IncrementAttendees(ctx, eventID); err != nil {
			return fmt.Errorf("increment attendees: %w", err)
		}
		if err := s.notify(ctx, event.OrganizerID, userID, domain.NotifyEventRSVP, "event", eventID); err != nil {
			return err
		}
		event.AttendeeCount++
		result = *event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Reconcile recomputes engagement counters, repairs drift and raises a
// suspicious-activity audit event when the drift ratio exceeds the threshold.
func (s *SocialService) Reconcile(ctx context.Context) (worker.Report, error) {
	result, err := s.posts.Reconcile(ctx, s.reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("reconcile counters: %w", err)
	}
	report := worker.Report{
		"counters_checked": int64(result.CountersChecked),
		"drifts":           int64(len(result.Drifts)),
	}
	if len(result.Drifts) == 0 {
		return report, nil
	}

	byCounter := make(map[domain.Counter]int)
	for _, d := range result.Drifts {
		byCounter[d.Counter]++
	}
	for counter, n := range byCounter {
		s.metrics.CounterDriftDetected(string(counter), n)
	}
	ratio := result.DriftRatio()
	s.logger.Warn("engagement counter drift detected",
		zap.Int("drifts", len(result.Drifts)),
		zap.Int("checked", result.CountersChecked),
		zap.Float64("ratio", ratio),
	)

	if err := s.posts.RepairCounters(ctx, result.Drifts); err != nil {
		return report, fmt.Errorf("repair counters: %w", err)
	}
	report["repaired"] = int64(len(result.Drifts))

	if ratio > s.driftThreshold && s.audit != nil {
		sample := result.Drifts
		if len(sample) > 20 {
			sample = sample[:20]
		}
		err := s.audit.RecordAudit(ctx, domain.AuditMessage{
			IdempotencyKey: reconcileIdempotencyNS + ksuid.New().String(),
			EventType:      domain.EventSuspiciousActivity,
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("engagement counter drift %.2f%% exceeds threshold", ratio*100),
			Source:         auditSourceSocial,
			Metadata: map[string]any{
				"counters_checked": result.CountersChecked,
				"drift_count":      len(result.Drifts),
				"drift_ratio":      ratio,
				"sample":           sample,
			},
			OccurredAt: s.now(),
		})
		if err != nil {
			s.logger.Error("drift audit delivery failed", zap.Error(err))
		} else {
			report["alerts"] = 1
		}
	}
	return report, nil
}
