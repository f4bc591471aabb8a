package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	// ErrExportPending indicates an export is already queued or running for the user.
	ErrExportPending = domain.NewError(domain.KindConflict, "export_pending", "an export request is already in progress")
	// ErrDownloadUnavailable covers expired, exhausted and unknown download tokens.
	ErrDownloadUnavailable = domain.NewError(domain.KindGone, "download_unavailable", "download link is expired or exhausted")
	// ErrExportNotFound indicates the export request does not exist for the user.
	ErrExportNotFound = domain.NotFound("export")
)

const (
	exportProgressLocal     = 30
	exportProgressCollected = 60
	maxExportsPerRun        = 10
	maxExportErrorLength    = 500
)

var knownExportDataTypes = map[string]struct{}{
	domain.ExportDataProfile:   {},
	domain.ExportDataWardrobe:  {},
	domain.ExportDataStyle:     {},
	domain.ExportDataAnalytics: {},
}

// ExportInput describes what the user wants exported.
type ExportInput struct {
	DataTypes []string
	Format    string
}

// ExportDownload is an open export file. The caller closes Body.
type ExportDownload struct {
	Request domain.ExportRequest
	Body    io.ReadCloser
}

// ExportService accepts export requests, serves downloads and runs the export worker.
type ExportService struct {
	cfg       config.ExportSettings
	exports   port.ExportRepository
	users     port.UserRepository
	analytics port.AnalyticsRepository
	audit     *AuditService
	files     port.FileStore
	tokens    port.TokenGenerator
	fragments []port.ExportFragmentSource
	tx        port.Transactor
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(cfg config.ExportSettings, exports port.ExportRepository, users port.UserRepository, audit *AuditService, files port.FileStore, tokens port.TokenGenerator, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultExportTTL
	}
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = domain.DefaultExportMaxDownloads
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = domain.ExportJobTimeout
	}
	if cfg.ReclaimAfter <= 0 {
		cfg.ReclaimAfter = domain.ExportReclaimAfter
	}
	return &ExportService{
		cfg:     cfg,
		exports: exports,
		users:   users,
		audit:   audit,
		files:   files,
		tokens:  tokens,
		logger:  logger,
		now:     utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ExportService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes request creation atomic with its audit event.
func (s *ExportService) WithTransactor(tx port.Transactor) *ExportService {
	s.tx = tx
	return s
}

// WithAnalytics fills the analytics section and counts requests.
func (s *ExportService) WithAnalytics(repo port.AnalyticsRepository) *ExportService {
	s.analytics = repo
	return s
}

// WithFragmentSources adds peers that contribute style and wardrobe sections.
func (s *ExportService) WithFragmentSources(sources ...port.ExportFragmentSource) *ExportService {
	for _, src := range sources {
		if src != nil {
			s.fragments = append(s.fragments, src)
		}
	}
	return s
}

// WithMetrics counts processed jobs by outcome.
func (s *ExportService) WithMetrics(m *telemetry.Metrics) *ExportService {
	s.metrics = m
	return s
}

// RequestExport queues a new export unless one is already open for the user.
func (s *ExportService) RequestExport(ctx context.Context, userID string, in ExportInput, rc domain.RequestContext) (*domain.ExportRequest, error) {
	format, err := domain.ParseExportFormat(in.Format)
	if err != nil {
		return nil, err
	}
	dataTypes := make([]string, 0, len(in.DataTypes))
	for _, t := range in.DataTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := knownExportDataTypes[t]; !ok {
			return nil, domain.Validation("data_types", "unknown data type %q", t)
		}
		dataTypes = append(dataTypes, t)
	}

	now := s.now()
	req := domain.ExportRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		RequestType:  domain.ExportTypeFull,
		DataTypes:    dataTypes,
		Format:       format,
		Status:       domain.ExportPending,
		MaxDownloads: s.cfg.MaxDownloads,
		CreatedAt:    now,
	}

	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		open, err := s.exports.FindOpenByUser(ctx, userID)
		switch {
		case err == nil && open != nil:
			return ErrExportPending
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find open export: %w", err)
		}

		if err := s.exports.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrExportPending
			}
			return fmt.Errorf("create export request: %w", err)
		}
		if s.analytics != nil {
			if err := s.analytics.Increment(ctx, userID, domain.AnalyticsDelta{Exports: 1}); err != nil {
				return fmt.Errorf("increment analytics: %w", err)
			}
		}
		return s.audit.emit(ctx, &userID, domain.EventDataExport, domain.SeverityInfo, "data export requested", rc,
			map[string]any{"export_id": req.ID, "format": string(format), "data_types": dataTypes})
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetExport returns one of the user's export requests.
func (s *ExportService) GetExport(ctx context.Context, userID, id string) (*domain.ExportRequest, error) {
	req, err := s.exports.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExportNotFound
		}
		return nil, fmt.Errorf("get export request: %w", err)
	}
	return req, nil
}

// Download counts a download against the token and opens the file.
// The guarded increment decides availability, so concurrent calls cannot
// exceed max downloads. The count and its audit event commit only once the
// file is open.
func (s *ExportService) Download(ctx context.Context, token string, rc domain.RequestContext) (*ExportDownload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrDownloadUnavailable
	}

	var (
		req  *domain.ExportRequest
		body io.ReadCloser
	)
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		req, err = s.exports.RegisterDownload(ctx, token, s.now())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDownloadUnavailable
			}
			return fmt.Errorf("register download: %w", err)
		}

		body, err = s.files.Open(ctx, req.FilePath)
		if err != nil {
			return fmt.Errorf("open export file: %w", err)
		}

		if err := s.audit.emit(ctx, &req.UserID, domain.EventDataExport, domain.SeverityInfo, "data export downloaded", rc,
			map[string]any{"export_id": req.ID, "download_count": req.DownloadCount}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if body != nil {
			_ = body.Close()
		}
		return nil, err
	}
	return &ExportDownload{Request: *req, Body: body}, nil
}

// ProcessPending claims and processes queued exports until none remain or
// the per-run cap is reached. It is the export worker's task.
func (s *ExportService) ProcessPending(ctx context.Context) (worker.Report, error) {
	report := worker.Report{"completed": 0, "failed": 0}
	for i := 0; i < maxExportsPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return report, nil
		}
		now := s.now()
		req, err := s.exports.ClaimNext(ctx, now, now.Add(-s.cfg.ReclaimAfter))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				break
			}
			return report, fmt.Errorf("claim export: %w", err)
		}

		if err := s.process(ctx, req); err != nil {
			report["failed"]++
			continue
		}
		report["completed"]++
	}
	return report, nil
}

// process runs one claimed request to a terminal state.
func (s *ExportService) process(ctx context.Context, req *domain.ExportRequest) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	logger := s.logger.With(zap.String("export_id", req.ID), zap.String("user_id", req.UserID))
	key, size, err := s.generate(jobCtx, req)
	if err == nil {
		var token string
		token, err = s.tokens.Generate()
		if err == nil {
			req.Complete(s.now(), token, key, size, s.cfg.TTL)
		}
	}
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "export timed out"
		}
		if len(msg) > maxExportErrorLength {
			msg = msg[:maxExportErrorLength]
		}
		req.Fail(s.now(), msg)
		logger.Error("export failed", zap.Error(err))
	}

	// The job context may be spent; the terminal write uses the outer one.
	if finishErr := s.exports.Finish(context.WithoutCancel(ctx), *req); finishErr != nil {
		logger.Error("failed to store export outcome", zap.Error(finishErr))
		if err == nil {
			err = finishErr
		}
	}

	if err != nil {
		s.metrics.ExportJobFinished("failed")
		return err
	}
	s.metrics.ExportJobFinished("completed")
	logger.Info("export completed", zap.Int64("file_size_bytes", size))
	return nil
}

func (s *ExportService) generate(ctx context.Context, req *domain.ExportRequest) (string, int64, error) {
	doc, err := s.collect(ctx, req)
	if err != nil {
		return "", 0, err
	}

	var (
		body        []byte
		contentType string
	)
	switch req.Format {
	case domain.ExportFormatCSV:
		body, err = renderExportCSV(doc)
		contentType = "text/csv"
	default:
		body, err = json.MarshalIndent(doc, "", "  ")
		contentType = "application/json"
	}
	if err != nil {
		return "", 0, fmt.Errorf("render export: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s.%s", req.UserID, req.ID, req.Format)
	location, err := s.files.Put(ctx, key, body, contentType)
	if err != nil {
		return "", 0, fmt.Errorf("store export: %w", err)
	}
	return location, int64(len(body)), nil
}

// collect assembles the document. Local sections come from this service;
// style and wardrobe sections come from peers. Progress is recorded after
// each stage.
func (s *ExportService) collect(ctx context.Context, req *domain.ExportRequest) (*domain.ExportDocument, error) {
	doc := &domain.ExportDocument{
		UserProfile:   map[string]any{},
		StyleProfile:  map[string]any{},
		WardrobeItems: []map[string]any{},
		OutfitHistory: []map[string]any{},
		Analytics:     []map[string]any{},
		StyleInsights: []map[string]any{},
		ExportInfo: domain.ExportInfo{
			RequestedAt: req.CreatedAt,
			ExportType:  req.RequestType,
			Format:      req.Format,
		},
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	// The profile section is always present so the file identifies its owner.
	doc.UserProfile = exportProfile(*user, req.Includes(domain.ExportDataProfile))

	if req.Includes(domain.ExportDataAnalytics) && s.analytics != nil {
		now := s.now()
		analytics, err := s.analytics.GetOrCreate(ctx, domain.UserAnalytics{
			ID: uuid.NewString(), UserID: req.UserID, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("load analytics: %w", err)
		}
		doc.Analytics = append(doc.Analytics, exportAnalytics(*analytics))
	}

	if err := s.heartbeat(ctx, req, exportProgressLocal); err != nil {
		return nil, err
	}

	wantPeers := req.Includes(domain.ExportDataStyle) || req.Includes(domain.ExportDataWardrobe)
	if wantPeers && len(s.fragments) > 0 {
		if err := s.mergeFragments(ctx, req, doc); err != nil {
			return nil, err
		}
	}
	if err := s.heartbeat(ctx, req, exportProgressCollected); err != nil {
		return nil, err
	}
	return doc, nil
}

// heartbeat records progress so a live job is not reclaimed as stale.
func (s *ExportService) heartbeat(ctx context.Context, req *domain.ExportRequest, progress int) error {
	if err := s.exports.Heartbeat(ctx, req.ID, progress, s.now()); err != nil {
		return fmt.Errorf("export heartbeat: %w", err)
	}
	return nil
}

// mergeFragments queries every peer concurrently and folds the requested
// sections into doc. A failing peer leaves its sections empty.
func (s *ExportService) mergeFragments(ctx context.Context, req *domain.ExportRequest, doc *domain.ExportDocument) error {
	results := make([]domain.ExportFragment, len(s.fragments))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.fragments {
		g.Go(func() error {
			fragment, err := src.FetchFragment(gctx, req.UserID)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("export fragment unavailable", zap.String("export_id", req.ID), zap.Error(err))
				return nil
			}
			results[i] = fragment
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, f := range results {
		if req.Includes(domain.ExportDataStyle) {
			if f.StyleProfile != nil {
				doc.StyleProfile = f.StyleProfile
			}
			doc.StyleInsights = append(doc.StyleInsights, f.StyleInsights...)
		}
		if req.Includes(domain.ExportDataWardrobe) {
			doc.WardrobeItems = append(doc.WardrobeItems, f.WardrobeItems...)
			doc.OutfitHistory = append(doc.OutfitHistory, f.OutfitHistory...)
		}
	}
	return nil
}

func exportProfile(u domain.User, full bool) map[string]any {
	profile := map[string]any{"id": u.ID}
	if !full {
		return profile
	}
	profile["username"] = u.Username
	profile["email"] = u.Email
	profile["first_name"] = u.FirstName
	profile["last_name"] = u.LastName
	profile["age_range"] = u.AgeRange
	profile["style_preference"] = u.StylePreference
	profile["color_preferences"] = u.ColorPreferences
	profile["budget_range"] = u.BudgetRange
	profile["is_active"] = u.IsActive
	profile["created_at"] = u.CreatedAt
	if u.LastLogin != nil {
		profile["last_login"] = *u.LastLogin
	}
	return profile
}

func exportAnalytics(a domain.UserAnalytics) map[string]any {
	row := map[string]any{
		"login_count":       a.LoginCount,
		"exports_requested": a.ExportsRequested,
		"privacy_changes":   a.PrivacyChanges,
		"created_at":        a.CreatedAt,
	}
	if a.LastLoginAt != nil {
		row["last_login_at"] = *a.LastLoginAt
	}
	return row
}

// renderExportCSV flattens every section into section,index,field,value rows.
// Nested values are written as JSON.
func renderExportCSV(doc *domain.ExportDocument) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"section", "index", "field", "value"}); err != nil {
		return nil, err
	}

	writeRow := func(section string, index int, row map[string]any) error {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value, err := csvValue(row[k])
			if err != nil {
				return err
			}
			if err := w.Write([]string{section, strconv.Itoa(index), k, value}); err != nil {
				return err
			}
		}
		return nil
	}

	sections := []struct {
		name string
		rows []map[string]any
	}{
		{"user_profile", []map[string]any{doc.UserProfile}},
		{"style_profile", []map[string]any{doc.StyleProfile}},
		{"wardrobe_items", doc.WardrobeItems},
		{"outfit_history", doc.OutfitHistory},
		{"analytics", doc.Analytics},
		{"style_insights", doc.StyleInsights},
		{"export_info", []map[string]any{{
			"requested_at": doc.ExportInfo.RequestedAt,
			"export_type":  doc.ExportInfo.ExportType,
			"format":       string(doc.ExportInfo.Format),
		}}},
	}
	for _, section := range sections {
		for i, row := range section.rows {
			if err := writeRow(section.name, i, row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
