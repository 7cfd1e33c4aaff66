package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/event"
	"github.com/garyjia/counsel-settlement/internal/domain/period"
	"github.com/garyjia/counsel-settlement/internal/domain/report"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
)

// ResetConfirmationPhrase must be passed verbatim to ResetSessions
const ResetConfirmationPhrase = "DELETE ALL SESSIONS"

// ReportQuery selects the sessions a report covers
type ReportQuery struct {
	Period period.Kind
	Anchor time.Time // any instant inside the wanted window
	Query  string    // teacher or client name filter
}

// ReportService builds settlement reports from committed sessions
type ReportService interface {
	Build(ctx context.Context, q ReportQuery) (*report.Report, error)
	ListSessions(ctx context.Context, w period.Window) ([]entity.SessionDetail, error)
	ResetSessions(ctx context.Context, confirmation string) (int64, error)
}

type reportServiceImpl struct {
	sessionRepo port.SessionRepository
	txManager   port.TransactionManager
	location    *time.Location
	events      port.EventPublisher
	logger      Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	sessionRepo port.SessionRepository,
	txManager port.TransactionManager,
	location *time.Location,
	logger Logger,
	opts ...Option,
) ReportService {
	if location == nil {
		location = time.Local
	}
	o := applyOptions(opts)
	return &reportServiceImpl{
		sessionRepo: sessionRepo,
		txManager:   txManager,
		location:    location,
		events:      o.events,
		logger:      logger,
	}
}

// Build aggregates the sessions of the day, week or month containing q.Anchor
func (s *reportServiceImpl) Build(ctx context.Context, q ReportQuery) (*report.Report, error) {
	kind := q.Period
	if kind == "" {
		kind = period.Month
	}
	anchor := q.Anchor
	if anchor.IsZero() {
		anchor = time.Now()
	}
	w, err := period.Of(kind, anchor.In(s.location))
	if err != nil {
		return nil, settlement.NewValidationError("period", err.Error())
	}

	sessions, err := s.ListSessions(ctx, w)
	if err != nil {
		return nil, err
	}

	rep := report.Aggregate(sessions, report.Filter{Window: w, Query: q.Query})
	s.logger.Info("Report built", "window", w.String(), "sessions", rep.Summary.Count)
	return rep, nil
}

// ListSessions returns detailed sessions dated inside w
func (s *reportServiceImpl) ListSessions(ctx context.Context, w period.Window) ([]entity.SessionDetail, error) {
	sessions, err := s.sessionRepo.ListDetailed(ctx, w.Start, w.End)
	if err != nil {
		s.logger.Error("Failed to list sessions", "error", err, "window", w.String())
		return nil, settlement.WrapPersistence("list sessions", err)
	}
	return sessions, nil
}

// ResetSessions deletes every session and its voucher usage. Irreversible.
func (s *reportServiceImpl) ResetSessions(ctx context.Context, confirmation string) (int64, error) {
	if confirmation != ResetConfirmationPhrase {
		return 0, settlement.ErrResetNotConfirmed
	}

	var deleted int64
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := s.sessionRepo.DeleteAll(txCtx)
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to reset sessions", "error", err)
		return 0, settlement.WrapPersistence("reset sessions", err)
	}

	s.logger.Info("All sessions deleted", "count", deleted)
	publish(ctx, s.events, event.NewEvent(event.TypeSessionsReset, "", map[string]interface{}{
		"deleted": deleted,
	}))
	return deleted, nil
}
