package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/repository"
)

// PermissionLogService is the admin-facing view of the drift audit
// trail: full history, per-admin unread feed and dismissals.
type PermissionLogService struct {
	logs   repository.PermissionLogsRepository
	logger *zap.Logger
}

func NewPermissionLogService(logs repository.PermissionLogsRepository, logger *zap.Logger) *PermissionLogService {
	return &PermissionLogService{logs: logs, logger: logger}
}

// DismissRequest carries the log ids one admin wants silenced.
type DismissRequest struct {
	LogIDs []string `json:"logIds"`
}

// DismissResponse reports the per-id outcome of a batch dismissal.
type DismissResponse struct {
	Dismissed        int      `json:"dismissed"`
	AlreadyDismissed int      `json:"alreadyDismissed"`
	NotFound         []string `json:"notFound,omitempty"`
}

// ListLogs returns the full audit trail, newest first. resolved nil
// lists everything; dismissals never hide rows from this view.
func (s *PermissionLogService) ListLogs(ctx context.Context, resolved *bool) ([]*domain.WikiPermissionLog, error) {
	return s.logs.ListLogs(ctx, resolved)
}

func (s *PermissionLogService) GetLog(ctx context.Context, logID string) (*domain.WikiPermissionLog, error) {
	return s.logs.GetLog(ctx, logID)
}

// ListUnread returns open detections this admin has not dismissed.
func (s *PermissionLogService) ListUnread(ctx context.Context, adminID string) ([]*domain.WikiPermissionLog, error) {
	return s.logs.ListUnread(ctx, adminID)
}

// Dismiss marks logs as read for one admin. Repeat dismissals are
// counted, not errors; unknown ids are reported back so the caller can
// refresh a stale list.
func (s *PermissionLogService) Dismiss(ctx context.Context, req *DismissRequest, adminID string) (*DismissResponse, error) {
	if len(req.LogIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one log id is required", domain.ErrValidation)
	}
	for _, id := range req.LogIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: invalid log id %q", domain.ErrValidation, id)
		}
	}

	resp := &DismissResponse{}
	for _, id := range req.LogIDs {
		if _, err := s.logs.GetLog(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				resp.NotFound = append(resp.NotFound, id)
				continue
			}
			return nil, err
		}
		inserted, err := s.logs.InsertDismissal(ctx, id, adminID)
		if err != nil {
			return nil, err
		}
		if inserted {
			resp.Dismissed++
		} else {
			resp.AlreadyDismissed++
		}
	}

	s.logger.Info("Dismissed permission logs",
		zap.String("admin_id", adminID),
		zap.Int("dismissed", resp.Dismissed),
		zap.Int("already_dismissed", resp.AlreadyDismissed),
		zap.Int("not_found", len(resp.NotFound)))
	return resp, nil
}
