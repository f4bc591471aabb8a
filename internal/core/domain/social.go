package domain

import (
	"strings"
	"time"
)

// PostVisibility controls who sees a post in feeds.
type PostVisibility string

const (
	PostPublic  PostVisibility = "public"
	PostFriends PostVisibility = "friends"
	PostPrivate PostVisibility = "private"
)

// Valid reports whether v is a recognized post visibility.
func (v PostVisibility) Valid() bool {
	switch v {
	case PostPublic, PostFriends, PostPrivate:
		return true
	}
	return false
}

// StylePost is a shared look carrying denormalized engagement counters.
type StylePost struct {
	ID            string
	UserID        string
	Caption       string
	ImageURL      string
	OutfitID      *string
	Tags          []string
	Visibility    PostVisibility
	LikesCount    int
	CommentsCount int
	SharesCount   int
	SavesCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the fields required to publish a post.
func (p StylePost) Validate() error {
	if strings.TrimSpace(p.Caption) == "" && strings.TrimSpace(p.ImageURL) == "" && p.OutfitID == nil {
		return Validation("post", "needs a caption, an image or an outfit")
	}
	if len(p.Caption) > 2000 {
		return Validation("caption", "must be at most 2000 characters")
	}
	if !p.Visibility.Valid() {
		return Validation("visibility", "must be one of public, friends, private")
	}
	return nil
}

// Comment is a reply on a post, optionally threaded under another comment.
type Comment struct {
	ID        string
	PostID    string
	UserID    string
	ParentID  *string
	Body      string
	CreatedAt time.Time
}

// Share records a post being shared to a platform.
type Share struct {
	ID        string
	PostID    string
	UserID    string
	Platform  string
	Message   string
	CreatedAt time.Time
}

// Counter names a denormalized engagement counter on a post.
type Counter string

const (
	CounterLikes    Counter = "likes_count"
	CounterComments Counter = "comments_count"
	CounterShares   Counter = "shares_count"
	CounterSaves    Counter = "saves_count"
)

// Counters lists every counter maintained on posts.
var Counters = []Counter{CounterLikes, CounterComments, CounterShares, CounterSaves}

// CounterDrift is a mismatch between a stored counter and its underlying rows.
type CounterDrift struct {
	PostID  string  `json:"post_id"`
	Counter Counter `json:"counter"`
	Stored  int     `json:"stored"`
	Actual  int     `json:"actual"`
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	CountersChecked int
	Drifts          []CounterDrift
}

// DriftRatio is the fraction of checked counters that drifted.
func (r ReconcileReport) DriftRatio() float64 {
	if r.CountersChecked == 0 {
		return 0
	}
	return float64(len(r.Drifts)) / float64(r.CountersChecked)
}

// NotificationKind classifies social notifications.
type NotificationKind string

const (
	NotifyLike          NotificationKind = "like"
	NotifyComment       NotificationKind = "comment"
	NotifyShare         NotificationKind = "share"
	NotifyCommunityJoin NotificationKind = "community_join"
	NotifyEventRSVP     NotificationKind = "event_rsvp"
	NotifyOrderPaid     NotificationKind = "order_paid"
	NotifySystem        NotificationKind = "system"
)

// Notification is delivered to a recipient as a side effect of engagement or commerce.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    *string
	Kind        NotificationKind
	Title       string
	Message     string
	EntityType  string
	EntityID    string
	Read        bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// Community is a user group with a denormalized member count.
type Community struct {
	ID           string
	Name         string
	Description  string
	Category     string
	OwnerID      string
	IsPrivate    bool
	MembersCount int
	CreatedAt    time.Time
}

// Validate checks the fields required to create a community.
func (c Community) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Validation("name", "is required")
	}
	return nil
}

// Event is a scheduled gathering users can RSVP to.
type Event struct {
	ID            string
	CommunityID   *string
	OrganizerID   string
	Title         string
	Description   string
	Location      string
	StartsAt      time.Time
	EndsAt        *time.Time
	Capacity      int
	AttendeeCount int
	CreatedAt     time.Time
}

// Validate checks title, timing and capacity.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return Validation("title", "is required")
	}
	if e.StartsAt.IsZero() {
		return Validation("starts_at", "is required")
	}
	if e.EndsAt != nil && !e.EndsAt.After(e.StartsAt) {
		return Validation("ends_at", "must be after starts_at")
	}
	if e.Capacity < 0 {
		return Validation("capacity", "must not be negative")
	}
	return nil
}

// HasCapacity reports whether one more attendee fits. Zero capacity is unlimited.
func (e Event) HasCapacity() bool {
	return e.Capacity == 0 || e.AttendeeCount < e.Capacity
}

// FeedPage bounds a feed query.
type FeedPage struct {
	Limit  int
	Offset int
}

// Normalize clamps the page into a sane range.
func (p FeedPage) Normalize() FeedPage {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
