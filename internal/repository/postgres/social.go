package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const (
	postsTable            = "social.posts"
	likesTable            = "social.likes"
	savesTable            = "social.saves"
	commentsTable         = "social.comments"
	sharesTable           = "social.shares"
	notificationsTable    = "social.notifications"
	communitiesTable      = "social.communities"
	communityMembersTable = "social.community_members"
	eventsTable           = "social.events"
	eventAttendeesTable   = "social.event_attendees"
)

var (
	errAlreadyLiked   = domain.NewError(domain.KindConflict, "already_liked", "post is already liked")
	errAlreadySaved   = domain.NewError(domain.KindConflict, "already_saved", "post is already saved")
	errAlreadyMember  = domain.NewError(domain.KindConflict, "already_member", "already a member of this community")
	errAlreadyRSVPed  = domain.NewError(domain.KindConflict, "already_rsvped", "already registered for this event")
	errUnknownCounter = domain.NewError(domain.KindInternal, "unknown_counter", "unknown engagement counter")
)

var postColumns = []string{
	"id",
	"user_id",
	"caption",
	"image_url",
	"outfit_id",
	"tags",
	"visibility",
	"likes_count",
	"comments_count",
	"shares_count",
	"saves_count",
	"created_at",
	"updated_at",
}

// PostRepository implements port.PostRepository.
type PostRepository struct {
	base
}

// NewPostRepository wires the style post repository.
func NewPostRepository(exec pgExecutor) *PostRepository {
	return &PostRepository{base: newBase(exec)}
}

// Create inserts a post with zeroed counters.
func (r *PostRepository) Create(ctx context.Context, p domain.StylePost) error {
	tags, err := json.Marshal(nonNilStrings(p.Tags))
	if err != nil {
		return fmt.Errorf("marshal post tags: %w", err)
	}
	stmt, args, err := r.builder.Insert(postsTable).
		Columns(postColumns...).
		Values(p.ID, p.UserID, p.Caption, p.ImageURL, p.OutfitID, tags, p.Visibility, 0, 0, 0, 0, p.CreatedAt, p.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert post sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert post")
	return err
}

// Get loads a post by id.
func (r *PostRepository) Get(ctx context.Context, id string) (*domain.StylePost, error) {
	posts, err := r.list(ctx, r.builder.Select(postColumns...).From(postsTable).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, repository.ErrNotFound
	}
	return &posts[0], nil
}

// ListFeed returns public posts plus the viewer's own posts, newest first.
func (r *PostRepository) ListFeed(ctx context.Context, viewerID string, page domain.FeedPage) ([]domain.StylePost, error) {
	page = page.Normalize()
	query := r.builder.
		Select(postColumns...).
		From(postsTable).
		Where(squirrel.Or{
			squirrel.Eq{"visibility": domain.PostPublic},
			squirrel.Eq{"user_id": viewerID},
		}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset))
	return r.list(ctx, query)
}

func (r *PostRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]domain.StylePost, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select posts sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]domain.StylePost, 0)
	for rows.Next() {
		var (
			p    domain.StylePost
			tags []byte
		)
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Caption,
			&p.ImageURL,
			&p.OutfitID,
			&tags,
			&p.Visibility,
			&p.LikesCount,
			&p.CommentsCount,
			&p.SharesCount,
			&p.SavesCount,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if err := unmarshalJSON(tags, &p.Tags); err != nil {
			return nil, fmt.Errorf("decode post tags: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Delete removes a post owned by userID; engagement rows cascade.
func (r *PostRepository) Delete(ctx context.Context, userID, id string) error {
	stmt, args, err := r.builder.Delete(postsTable).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete post sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "delete post")
}

// AdjustCounter adds delta to one counter, never going below zero.
func (r *PostRepository) AdjustCounter(ctx context.Context, postID string, counter domain.Counter, delta int) error {
	if !knownCounter(counter) {
		return errUnknownCounter
	}
	column := string(counter)
	stmt, args, err := r.builder.Update(postsTable).
		Set(column, squirrel.Expr("GREATEST("+column+" + ?, 0)", delta)).
		Where(squirrel.Eq{"id": postID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build adjust counter sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "adjust "+column)
}

const reconcileQuery = `SELECT p.id,
	p.likes_count, (SELECT count(*) FROM ` + likesTable + ` l WHERE l.post_id = p.id),
	p.comments_count, (SELECT count(*) FROM ` + commentsTable + ` c WHERE c.post_id = p.id),
	p.shares_count, (SELECT count(*) FROM ` + sharesTable + ` s WHERE s.post_id = p.id),
	p.saves_count, (SELECT count(*) FROM ` + savesTable + ` v WHERE v.post_id = p.id)
FROM ` + postsTable + ` p
ORDER BY p.updated_at DESC
LIMIT $1`

// Reconcile recomputes the counters of the most recently touched posts from
// their underlying rows and reports every mismatch.
func (r *PostRepository) Reconcile(ctx context.Context, limit int) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, reconcileQuery, limit)
	if err != nil {
		return report, fmt.Errorf("query counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			postID string
			pairs  [4][2]int
		)
		if err := rows.Scan(
			&postID,
			&pairs[0][0], &pairs[0][1],
			&pairs[1][0], &pairs[1][1],
			&pairs[2][0], &pairs[2][1],
			&pairs[3][0], &pairs[3][1],
		); err != nil {
			return report, fmt.Errorf("scan counters: %w", err)
		}
		for i, counter := range domain.Counters {
			report.CountersChecked++
			if pairs[i][0] != pairs[i][1] {
				report.Drifts = append(report.Drifts, domain.CounterDrift{
					PostID:  postID,
					Counter: counter,
					Stored:  pairs[i][0],
					Actual:  pairs[i][1],
				})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("iterate counters: %w", err)
	}
	return report, nil
}

// RepairCounters overwrites drifted counters with their recomputed values.
func (r *PostRepository) RepairCounters(ctx context.Context, drifts []domain.CounterDrift) error {
	for _, d := range drifts {
		if !knownCounter(d.Counter) {
			return errUnknownCounter
		}
		stmt, args, err := r.builder.Update(postsTable).
			Set(string(d.Counter), d.Actual).
			Where(squirrel.Eq{"id": d.PostID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build repair counter sql: %w", err)
		}
		if _, err := r.execCount(ctx, stmt, args, "repair "+string(d.Counter)); err != nil {
			return err
		}
	}
	return nil
}

func knownCounter(c domain.Counter) bool {
	for _, known := range domain.Counters {
		if c == known {
			return true
		}
	}
	return false
}

// EngagementRepository implements port.EngagementRepository.
type EngagementRepository struct {
	base
}

// NewEngagementRepository wires the engagement repository.
func NewEngagementRepository(exec pgExecutor) *EngagementRepository {
	return &EngagementRepository{base: newBase(exec)}
}

// AddLike records a like. The (user_id, post_id) unique index rejects duplicates.
func (r *EngagementRepository) AddLike(ctx context.Context, userID, postID string, at time.Time) error {
	return r.addMark(ctx, likesTable, userID, postID, at, "likes_user_post_key", errAlreadyLiked)
}

// RemoveLike deletes a like and reports whether one existed.
func (r *EngagementRepository) RemoveLike(ctx context.Context, userID, postID string) (bool, error) {
	return r.removeMark(ctx, likesTable, userID, postID)
}

// AddSave bookmarks a post for the user.
func (r *EngagementRepository) AddSave(ctx context.Context, userID, postID string, at time.Time) error {
	return r.addMark(ctx, savesTable, userID, postID, at, "saves_user_post_key", errAlreadySaved)
}

// RemoveSave deletes a bookmark and reports whether one existed.
func (r *EngagementRepository) RemoveSave(ctx context.Context, userID, postID string) (bool, error) {
	return r.removeMark(ctx, savesTable, userID, postID)
}

func (r *EngagementRepository) addMark(ctx context.Context, table, userID, postID string, at time.Time, constraint string, dup *domain.Error) error {
	stmt, args, err := r.builder.Insert(table).
		Columns("user_id", "post_id", "created_at").
		Values(userID, postID, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s sql: %w", table, err)
	}
	if _, err := r.execCount(ctx, stmt, args, "insert "+table); err != nil {
		if isConstraint(err, constraint) {
			return dup
		}
		return err
	}
	return nil
}

func (r *EngagementRepository) removeMark(ctx context.Context, table, userID, postID string) (bool, error) {
	stmt, args, err := r.builder.Delete(table).
		Where(squirrel.Eq{"user_id": userID, "post_id": postID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete %s sql: %w", table, err)
	}
	n, err := r.execCount(ctx, stmt, args, "delete "+table)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var commentColumns = []string{"id", "post_id", "user_id", "parent_id", "body", "created_at"}

// CreateComment inserts a comment.
func (r *EngagementRepository) CreateComment(ctx context.Context, c domain.Comment) error {
	stmt, args, err := r.builder.Insert(commentsTable).
		Columns(commentColumns...).
		Values(c.ID, c.PostID, c.UserID, c.ParentID, c.Body, c.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert comment sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert comment")
	return err
}

// GetComment loads a comment by id.
func (r *EngagementRepository) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	comments, err := r.listComments(ctx, r.builder.Select(commentColumns...).From(commentsTable).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, repository.ErrNotFound
	}
	return &comments[0], nil
}

// DeleteComment removes a comment and its direct replies, returning how many rows went.
func (r *EngagementRepository) DeleteComment(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Delete(commentsTable).
		Where(squirrel.Or{squirrel.Eq{"id": id}, squirrel.Eq{"parent_id": id}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete comment sql: %w", err)
	}
	n, err := r.execCount(ctx, stmt, args, "delete comment")
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, repository.ErrNotFound
	}
	return int(n), nil
}

// ListComments returns a post's comments in posting order.
func (r *EngagementRepository) ListComments(ctx context.Context, postID string, limit int) ([]domain.Comment, error) {
	return r.listComments(ctx, r.builder.
		Select(commentColumns...).
		From(commentsTable).
		Where(squirrel.Eq{"post_id": postID}).
		OrderBy("created_at").
		Limit(uint64(limit)))
}

func (r *EngagementRepository) listComments(ctx context.Context, query squirrel.SelectBuilder) ([]domain.Comment, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select comments sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.ParentID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CreateShare records a share.
func (r *EngagementRepository) CreateShare(ctx context.Context, s domain.Share) error {
	stmt, args, err := r.builder.Insert(sharesTable).
		Columns("id", "post_id", "user_id", "platform", "message", "created_at").
		Values(s.ID, s.PostID, s.UserID, s.Platform, s.Message, s.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert share sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert share")
	return err
}

var notificationColumns = []string{
	"id",
	"recipient_id",
	"sender_id",
	"kind",
	"title",
	"message",
	"entity_type",
	"entity_id",
	"is_read",
	"read_at",
	"created_at",
}

// NotificationRepository implements port.NotificationRepository.
type NotificationRepository struct {
	base
}

// NewNotificationRepository wires the notification repository.
func NewNotificationRepository(exec pgExecutor) *NotificationRepository {
	return &NotificationRepository{base: newBase(exec)}
}

// Create inserts a notification. Replaying an id is a no-op.
func (r *NotificationRepository) Create(ctx context.Context, n domain.Notification) error {
	stmt, args, err := r.builder.Insert(notificationsTable).
		Columns(notificationColumns...).
		Values(n.ID, n.RecipientID, n.SenderID, n.Kind, n.Title, n.Message, n.EntityType, n.EntityID, n.Read, n.ReadAt, n.CreatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert notification sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert notification")
	return err
}

// List returns the recipient's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, recipientID string, unreadOnly bool, page domain.FeedPage) ([]domain.Notification, error) {
	page = page.Normalize()
	query := r.builder.
		Select(notificationColumns...).
		From(notificationsTable).
		Where(squirrel.Eq{"recipient_id": recipientID}).
		OrderBy("created_at DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset))
	if unreadOnly {
		query = query.Where(squirrel.Eq{"is_read": false})
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list notifications sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.SenderID,
			&n.Kind,
			&n.Title,
			&n.Message,
			&n.EntityType,
			&n.EntityID,
			&n.Read,
			&n.ReadAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead flags one notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(notificationsTable).
		Set("is_read", true).
		Set("read_at", squirrel.Expr("COALESCE(read_at, ?)", at)).
		Where(squirrel.Eq{"id": id, "recipient_id": recipientID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark notification read sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "mark notification read")
}

// MarkAllRead flags every unread notification of the recipient.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	stmt, args, err := r.builder.Update(notificationsTable).
		Set("is_read", true).
		Set("read_at", at).
		Where(squirrel.Eq{"recipient_id": recipientID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark all read sql: %w", err)
	}
	return r.execCount(ctx, stmt, args, "mark all notifications read")
}

var communityColumns = []string{"id", "name", "description", "category", "owner_id", "is_private", "members_count", "created_at"}

// CommunityRepository implements port.CommunityRepository.
type CommunityRepository struct {
	base
}

// NewCommunityRepository wires the community repository.
func NewCommunityRepository(exec pgExecutor) *CommunityRepository {
	return &CommunityRepository{base: newBase(exec)}
}

// Create inserts a community.
func (r *CommunityRepository) Create(ctx context.Context, c domain.Community) error {
	stmt, args, err := r.builder.Insert(communitiesTable).
		Columns(communityColumns...).
		Values(c.ID, c.Name, c.Description, c.Category, c.OwnerID, c.IsPrivate, c.MembersCount, c.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert community sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert community")
	return err
}

// Get loads a community by id.
func (r *CommunityRepository) Get(ctx context.Context, id string) (*domain.Community, error) {
	communities, err := r.list(ctx, r.builder.Select(communityColumns...).From(communitiesTable).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(communities) == 0 {
		return nil, repository.ErrNotFound
	}
	return &communities[0], nil
}

// List returns public communities, largest first.
func (r *CommunityRepository) List(ctx context.Context, page domain.FeedPage) ([]domain.Community, error) {
	page = page.Normalize()
	return r.list(ctx, r.builder.
		Select(communityColumns...).
		From(communitiesTable).
		Where(squirrel.Eq{"is_private": false}).
		OrderBy("members_count DESC", "created_at DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset)))
}

func (r *CommunityRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]domain.Community, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select communities sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query communities: %w", err)
	}
	defer rows.Close()

	communities := make([]domain.Community, 0)
	for rows.Next() {
		var c domain.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Category, &c.OwnerID, &c.IsPrivate, &c.MembersCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		communities = append(communities, c)
	}
	return communities, rows.Err()
}

// AddMember joins a user to a community.
func (r *CommunityRepository) AddMember(ctx context.Context, communityID, userID string, at time.Time) error {
	stmt, args, err := r.builder.Insert(communityMembersTable).
		Columns("community_id", "user_id", "joined_at").
		Values(communityID, userID, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert member sql: %w", err)
	}
	if _, err := r.execCount(ctx, stmt, args, "insert community member"); err != nil {
		if IsUniqueViolation(err) {
			return errAlreadyMember
		}
		return err
	}
	return nil
}

// RemoveMember removes a membership and reports whether one existed.
func (r *CommunityRepository) RemoveMember(ctx context.Context, communityID, userID string) (bool, error) {
	stmt, args, err := r.builder.Delete(communityMembersTable).
		Where(squirrel.Eq{"community_id": communityID, "user_id": userID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete member sql: %w", err)
	}
	n, err := r.execCount(ctx, stmt, args, "delete community member")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AdjustMembers adds delta to members_count, never going below zero.
func (r *CommunityRepository) AdjustMembers(ctx context.Context, communityID string, delta int) error {
	stmt, args, err := r.builder.Update(communitiesTable).
		Set("members_count", squirrel.Expr("GREATEST(members_count + ?, 0)", delta)).
		Where(squirrel.Eq{"id": communityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build adjust members sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "adjust members_count")
}

var eventColumns = []string{
	"id",
	"community_id",
	"organizer_id",
	"title",
	"description",
	"location",
	"starts_at",
	"ends_at",
	"capacity",
	"attendee_count",
	"created_at",
}

// EventRepository implements port.EventRepository.
type EventRepository struct {
	base
}

// NewEventRepository wires the event repository.
func NewEventRepository(exec pgExecutor) *EventRepository {
	return &EventRepository{base: newBase(exec)}
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, e domain.Event) error {
	stmt, args, err := r.builder.Insert(eventsTable).
		Columns(eventColumns...).
		Values(e.ID, e.CommunityID, e.OrganizerID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.Capacity, e.AttendeeCount, e.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert event sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert event")
	return err
}

// Get loads an event by id.
func (r *EventRepository) Get(ctx context.Context, id string) (*domain.Event, error) {
	return r.getOne(ctx, id, "")
}

// GetForUpdate locks the event row so capacity checks are serialized.
func (r *EventRepository) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.getOne(ctx, id, "FOR UPDATE")
}

func (r *EventRepository) getOne(ctx context.Context, id, suffix string) (*domain.Event, error) {
	query := r.builder.Select(eventColumns...).From(eventsTable).Where(squirrel.Eq{"id": id})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select event sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	event, err := scanEvent(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return event, nil
}

// ListUpcoming returns events starting at or after from, soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, from time.Time, page domain.FeedPage) ([]domain.Event, error) {
	page = page.Normalize()
	stmt, args, err := r.builder.
		Select(eventColumns...).
		From(eventsTable).
		Where(squirrel.GtOrEq{"starts_at": from}).
		OrderBy("starts_at").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list events sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// AddAttendee records an RSVP.
func (r *EventRepository) AddAttendee(ctx context.Context, eventID, userID string, at time.Time) error {
	stmt, args, err := r.builder.Insert(eventAttendeesTable).
		Columns("event_id", "user_id", "rsvp_at").
		Values(eventID, userID, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert attendee sql: %w", err)
	}
	if _, err := r.execCount(ctx, stmt, args, "insert event attendee"); err != nil {
		if IsUniqueViolation(err) {
			return errAlreadyRSVPed
		}
		return err
	}
	return nil
}

// IncrementAttendees bumps attendee_count by one.
func (r *EventRepository) IncrementAttendees(ctx context.Context, eventID string) error {
	stmt, args, err := r.builder.Update(eventsTable).
		Set("attendee_count", squirrel.Expr("attendee_count + 1")).
		Where(squirrel.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment attendees sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "increment attendee_count")
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(
		&e.ID,
		&e.CommunityID,
		&e.OrganizerID,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.StartsAt,
		&e.EndsAt,
		&e.Capacity,
		&e.AttendeeCount,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
