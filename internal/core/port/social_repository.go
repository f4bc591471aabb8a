package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// PostRepository persists style posts and their denormalized counters.
type PostRepository interface {
	Create(ctx context.Context, post domain.StylePost) error
	Get(ctx context.Context, id string) (*domain.StylePost, error)
	ListFeed(ctx context.Context, viewerID string, page domain.FeedPage) ([]domain.StylePost, error)
	Delete(ctx context.Context, userID, id string) error
	AdjustCounter(ctx context.Context, postID string, counter domain.Counter, delta int) error
	// Reconcile compares stored counters with underlying rows for up to limit posts.
	Reconcile(ctx context.Context, limit int) (domain.ReconcileReport, error)
	RepairCounters(ctx context.Context, drifts []domain.CounterDrift) error
}

// EngagementRepository persists likes, saves, comments and shares.
type EngagementRepository interface {
	// AddLike returns domain conflict "already_liked" when the like exists.
	AddLike(ctx context.Context, userID, postID string, at time.Time) error
	RemoveLike(ctx context.Context, userID, postID string) (bool, error)
	AddSave(ctx context.Context, userID, postID string, at time.Time) error
	RemoveSave(ctx context.Context, userID, postID string) (bool, error)
	CreateComment(ctx context.Context, comment domain.Comment) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, id string) (int, error)
	ListComments(ctx context.Context, postID string, limit int) ([]domain.Comment, error)
	CreateShare(ctx context.Context, share domain.Share) error
}

// NotificationRepository persists notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification domain.Notification) error
	List(ctx context.Context, recipientID string, unreadOnly bool, page domain.FeedPage) ([]domain.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

// CommunityRepository persists communities and memberships.
type CommunityRepository interface {
	Create(ctx context.Context, community domain.Community) error
	Get(ctx context.Context, id string) (*domain.Community, error)
	List(ctx context.Context, page domain.FeedPage) ([]domain.Community, error)
	AddMember(ctx context.Context, communityID, userID string, at time.Time) error
	RemoveMember(ctx context.Context, communityID, userID string) (bool, error)
	AdjustMembers(ctx context.Context, communityID string, delta int) error
}

// EventRepository persists events and RSVPs.
type EventRepository interface {
	Create(ctx context.Context, event domain.Event) error
	Get(ctx context.Context, id string) (*domain.Event, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Event, error)
	ListUpcoming(ctx context.Context, from time.Time, page domain.FeedPage) ([]domain.Event, error)
	AddAttendee(ctx context.Context, eventID, userID string, at time.Time) error
	IncrementAttendees(ctx context.Context, eventID string) error
}
