package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/event"
	"github.com/garyjia/counsel-settlement/internal/domain/period"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// errStaleSnapshot marks a quota race caused by a caller-supplied expectation.
// Retrying cannot fix it; the caller has to quote again.
var errStaleSnapshot = errors.New("usage differs from the quoted snapshot")

// Quote is a computed but uncommitted settlement
type Quote struct {
	Breakdown *settlement.Breakdown `json:"breakdown"`
	// Snapshot is the per-voucher usage the breakdown was computed from
	Snapshot map[string]int64 `json:"snapshot"`
}

// SubmitRequest commits a settlement. When ExpectedUsage is set, the commit
// fails with ErrQuotaRace unless storage still shows exactly that usage.
type SubmitRequest struct {
	Request       settlement.Request `json:"request"`
	ExpectedUsage map[string]int64   `json:"expected_usage,omitempty"`
}

// SubmitResult is a committed settlement
type SubmitResult struct {
	Session   *entity.Session       `json:"session"`
	Breakdown *settlement.Breakdown `json:"breakdown"`
}

// MasterData groups the read ports a settlement resolves its request against
type MasterData struct {
	Teachers    port.TeacherRepository
	Clients     port.ClientRepository
	Vouchers    port.VoucherRepository
	Enrollments port.EnrollmentRepository
	Schedules   port.CenterScheduleRepository
}

// SettlementOptions tunes the settlement service
type SettlementOptions struct {
	Location *time.Location
	// FallbackTariff applies when no center schedule has been saved
	FallbackTariff settlement.Tariff
	// MaxQuotaRetries bounds SubmitWithRetry
	MaxQuotaRetries uint64
	// RetryBase is the first backoff delay of SubmitWithRetry
	RetryBase time.Duration
	// Events receives session.settled after each commit; nil disables publishing
	Events port.EventPublisher
}

// DefaultSettlementOptions returns the options used when none are configured
func DefaultSettlementOptions() SettlementOptions {
	return SettlementOptions{
		Location:        time.Local,
		FallbackTariff:  settlement.DefaultTariff(),
		MaxQuotaRetries: 3,
		RetryBase:       20 * time.Millisecond,
	}
}

// SettlementService quotes and commits sessions
type SettlementService interface {
	Quote(ctx context.Context, req settlement.Request) (*Quote, error)
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	SubmitWithRetry(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

type settlementServiceImpl struct {
	master      MasterData
	sessionRepo port.SessionRepository
	usageRepo   port.UsageRepository
	ledger      LedgerService
	locker      port.QuotaLocker
	txManager   port.TransactionManager
	opts        SettlementOptions
	logger      Logger
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	master MasterData,
	sessionRepo port.SessionRepository,
	usageRepo port.UsageRepository,
	ledger LedgerService,
	locker port.QuotaLocker,
	txManager port.TransactionManager,
	opts SettlementOptions,
	logger Logger,
) SettlementService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultSettlementOptions().RetryBase
	}
	return &settlementServiceImpl{
		master:      master,
		sessionRepo: sessionRepo,
		usageRepo:   usageRepo,
		ledger:      ledger,
		locker:      locker,
		txManager:   txManager,
		opts:        opts,
		logger:      logger,
	}
}

// prepared holds the resolved inputs of one computation
type prepared struct {
	input    settlement.Input
	vouchers []*entity.Voucher
	snapshot map[string]int64
}

// Quote computes a settlement without writing anything
func (s *settlementServiceImpl) Quote(ctx context.Context, req settlement.Request) (*Quote, error) {
	req = s.normalize(req)
	if err := settlement.ValidateRequest(req); err != nil {
		return nil, err
	}

	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	breakdown, err := settlement.Compute(p.input)
	if err != nil {
		return nil, err
	}
	return &Quote{Breakdown: breakdown, Snapshot: p.snapshot}, nil
}

// Submit computes and commits a settlement atomically
func (s *settlementServiceImpl) Submit(ctx context.Context, sr SubmitRequest) (*SubmitResult, error) {
	req := s.normalize(sr.Request)
	if err := settlement.ValidateRequest(req); err != nil {
		return nil, err
	}

	keys := quotaKeys(req, s.opts.Location)
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock quota: %w", err)
	}
	defer unlock()

	var result *SubmitResult
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, key := range keys {
			if err := s.usageRepo.LockQuota(txCtx, key); err != nil {
				return settlement.WrapPersistence("lock quota", err)
			}
		}

		p, err := s.prepare(txCtx, req)
		if err != nil {
			return err
		}
		if sr.ExpectedUsage != nil {
			if err := checkExpected(sr.ExpectedUsage, p.snapshot); err != nil {
				return err
			}
		}

		breakdown, err := settlement.Compute(p.input)
		if err != nil {
			return err
		}

		session := &entity.Session{
			ID:              uuid.NewString(),
			Date:            req.Date,
			TeacherID:       req.TeacherID,
			ClientID:        req.ClientID,
			DurationMinutes: req.DurationMinutes,
			TotalFee:        breakdown.SessionFee,
			TotalSupport:    breakdown.TotalSupport,
			FinalClientCost: breakdown.FinalClientCost,
			CreatedAt:       time.Now(),
		}
		if err := s.sessionRepo.Create(txCtx, session); err != nil {
			return settlement.WrapPersistence("create session", err)
		}
		for _, row := range breakdown.UsageRows(session.ID) {
			if err := s.ledger.RecordUsage(txCtx, row.SessionID, row.VoucherID, row.UsedAmount); err != nil {
				return err
			}
		}

		if err := s.verifyQuota(txCtx, req, p, breakdown); err != nil {
			return err
		}

		result = &SubmitResult{Session: session, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit settlement", "error", err,
			"teacher_id", req.TeacherID, "client_id", req.ClientID)
		return nil, err
	}

	s.logger.Info("Settlement committed",
		"session_id", result.Session.ID,
		"mode", result.Breakdown.Mode,
		"total_fee", result.Session.TotalFee,
		"total_support", result.Session.TotalSupport,
		"final_client_cost", result.Session.FinalClientCost)
	publish(ctx, s.opts.Events, settledEvent(result))
	return result, nil
}

func settledEvent(r *SubmitResult) *event.Event {
	return event.NewEvent(event.TypeSessionSettled, r.Session.ID, map[string]interface{}{
		"client_id":         r.Session.ClientID,
		"teacher_id":        r.Session.TeacherID,
		"date":              r.Session.Date,
		"mode":              string(r.Breakdown.Mode),
		"total_fee":         r.Session.TotalFee,
		"total_support":     r.Session.TotalSupport,
		"final_client_cost": r.Session.FinalClientCost,
		"usage":             r.Breakdown.UsageMap(),
	})
}

// SubmitWithRetry repeats Submit from a fresh snapshot while it loses quota races
func (s *settlementServiceImpl) SubmitWithRetry(ctx context.Context, sr SubmitRequest) (*SubmitResult, error) {
	backoff := retry.WithMaxRetries(s.opts.MaxQuotaRetries, retry.NewExponential(s.opts.RetryBase))

	var result *SubmitResult
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := s.Submit(ctx, sr)
		if err != nil {
			if errors.Is(err, settlement.ErrQuotaRace) && !errors.Is(err, errStaleSnapshot) {
				s.logger.Info("Quota race, retrying settlement", "attempt", attempt, "client_id", sr.Request.ClientID)
				return retry.RetryableError(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *settlementServiceImpl) normalize(req settlement.Request) settlement.Request {
	if !req.Date.IsZero() {
		req.Date = req.Date.In(s.opts.Location)
	}
	return req
}

// prepare runs the referential checks and loads everything Compute needs
func (s *settlementServiceImpl) prepare(ctx context.Context, req settlement.Request) (*prepared, error) {
	teacher, err := s.master.Teachers.GetByID(ctx, req.TeacherID)
	if err != nil {
		return nil, settlement.WrapPersistence("get teacher", err)
	}
	if teacher == nil {
		return nil, settlement.NewValidationError("teacher_id", "does not exist")
	}
	if !teacher.Active {
		return nil, settlement.NewValidationError("teacher_id", "is not active")
	}

	client, err := s.master.Clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, settlement.WrapPersistence("get client", err)
	}
	if client == nil {
		return nil, settlement.NewValidationError("client_id", "does not exist")
	}
	if client.EndedBefore(req.Date, s.opts.Location) {
		return nil, settlement.NewValidationError("client_id",
			fmt.Sprintf("client ended on %s", client.EndDay(s.opts.Location).Format("2006-01-02")))
	}

	schedule, err := s.master.Schedules.Get(ctx)
	if err != nil {
		return nil, settlement.WrapPersistence("get center schedule", err)
	}
	tariff := s.opts.FallbackTariff
	if schedule != nil {
		tariff = settlement.TariffFromSchedule(schedule)
	}

	snapshot, err := s.ledger.Snapshot(ctx, req.ClientID, req.VoucherIDs, req.Date)
	if err != nil {
		return nil, err
	}

	p := &prepared{
		input:    settlement.Input{Request: req, Tariff: tariff},
		snapshot: snapshot,
	}
	for _, voucherID := range req.VoucherIDs {
		voucher, err := s.master.Vouchers.GetByID(ctx, voucherID)
		if err != nil {
			return nil, settlement.WrapPersistence("get voucher", err)
		}
		if voucher == nil {
			return nil, settlement.NewValidationError("voucher_ids",
				fmt.Sprintf("voucher %s does not exist", voucherID))
		}
		enrollment, err := s.master.Enrollments.Get(ctx, req.ClientID, voucherID)
		if err != nil {
			return nil, settlement.WrapPersistence("get enrollment", err)
		}
		p.vouchers = append(p.vouchers, voucher)
		p.input.Vouchers = append(p.input.Vouchers, settlement.VoucherInput{
			Voucher:       *voucher,
			Enrollment:    enrollment,
			UsedThisMonth: snapshot[voucherID],
		})
	}
	return p, nil
}

// verifyQuota re-reads every pool after the writes. Any drift from what the
// breakdown assumed, or a pool driven over its limit, aborts the commit.
func (s *settlementServiceImpl) verifyQuota(ctx context.Context, req settlement.Request, p *prepared, b *settlement.Breakdown) error {
	used := b.UsageMap()
	for _, voucher := range p.vouchers {
		total, err := s.ledger.UsedThisMonth(ctx, req.ClientID, voucher.ID, req.Date)
		if err != nil {
			return err
		}
		want := p.snapshot[voucher.ID] + used[voucher.ID]
		if total != want {
			return fmt.Errorf("%w: voucher %s shows %d, expected %d", settlement.ErrQuotaRace, voucher.ID, total, want)
		}
		if used[voucher.ID] > 0 && total > voucher.MonthlySupportAmount {
			return fmt.Errorf("%w: voucher %s over its monthly limit", settlement.ErrQuotaRace, voucher.ID)
		}
	}
	return nil
}

func checkExpected(expected, actual map[string]int64) error {
	for voucherID, got := range actual {
		if expected[voucherID] != got {
			return fmt.Errorf("%w: %w: voucher %s", settlement.ErrQuotaRace, errStaleSnapshot, voucherID)
		}
	}
	return nil
}

// QuotaKey identifies one voucher pool for one client and month
func QuotaKey(clientID, voucherID string, month time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", clientID, voucherID, month.Format("2006-01"))
}

func quotaKeys(req settlement.Request, loc *time.Location) []string {
	month := period.MonthOf(req.Date.In(loc)).Start
	keys := make([]string, 0, len(req.VoucherIDs))
	for _, voucherID := range req.VoucherIDs {
		keys = append(keys, QuotaKey(req.ClientID, voucherID, month))
	}
	sort.Strings(keys)
	return keys
}
