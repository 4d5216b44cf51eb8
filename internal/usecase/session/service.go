package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
	"github.com/imagespace/iqrproxy/internal/logger"
)

// Service forwards session operations to the IQR service and keeps
// a record of every created session in the caller's folder.
type Service struct {
	iqr    IQRClient
	repo   RecordRepository
	folder string
	now    func() time.Time
	newID  func() string
}

// New creates a session service. An empty folder selects domsession.DefaultFolder.
func New(iqr IQRClient, repo RecordRepository, folder string) *Service {
	if folder == "" {
		folder = domsession.DefaultFolder
	}
	return &Service{
		iqr:    iqr,
		repo:   repo,
		folder: folder,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create opens a new IQR session and records it under user's folder.
func (s *Service) Create(ctx context.Context, user string) (domsession.Record, error) {
	user = ownerOrAnonymous(user)

	sid, err := s.iqr.CreateSession(ctx)
	if err != nil {
		return domsession.Record{}, fmt.Errorf("create iqr session: %w", err)
	}

	rec, err := domsession.NewRecord(s.newID(), sid, user, s.folder, s.now())
	if err != nil {
		return domsession.Record{}, fmt.Errorf("build session record: %w", err)
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		// The IQR session exists but is not listed anywhere.
		logger.FromContext(ctx).Warn("session created but not recorded",
			zap.String("sid", sid), zap.String("user", user), zap.Error(err))
		return domsession.Record{}, fmt.Errorf("save session record: %w", err)
	}

	logger.FromContext(ctx).Info("session created",
		zap.String("sid", sid), zap.String("user", user), zap.String("record_id", rec.ID()))
	return rec, nil
}

// List returns the session records in user's folder, oldest first.
func (s *Service) List(ctx context.Context, user string) ([]domsession.Record, error) {
	records, err := s.repo.List(ctx, ownerOrAnonymous(user), s.folder)
	if err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return records, nil
}

// Refine submits relevance judgements and returns the IQR response untouched.
func (s *Service) Refine(ctx context.Context, req domsession.RefineRequest) (json.RawMessage, error) {
	raw, err := s.iqr.Refine(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("refine session: %w", err)
	}
	logger.FromContext(ctx).Debug("session refined",
		zap.String("sid", req.SID()),
		zap.Int("positive", len(req.Positive())),
		zap.Int("negative", len(req.Negative())),
	)
	return raw, nil
}

func ownerOrAnonymous(user string) string {
	if user == "" {
		return domsession.AnonymousUser
	}
	return user
}
