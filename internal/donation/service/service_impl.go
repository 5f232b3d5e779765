package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/amount"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/donation/domain"
	obslogger "github.com/smallbiznis/donara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	"github.com/smallbiznis/donara/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultLockTTL = 10 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock            `optional:"true"`
	Notifier   domain.SettledNotifier `optional:"true"`
	Locker     DistributedLocker      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
	LockTTL    time.Duration          `name:"donationLockTTL" optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	notifier   domain.SettledNotifier
	locker     DistributedLocker
	lockTTL    time.Duration
	obsMetrics *obsmetrics.Metrics
	locks      *keyedMutex
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	ttl := p.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("donation.ledger"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      c,
		notifier:   p.Notifier,
		locker:     p.Locker,
		lockTTL:    ttl,
		obsMetrics: p.ObsMetrics,
		locks:      newKeyedMutex(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateDonationRequest) (*domain.Donation, error) {
	donorID := strings.TrimSpace(req.DonorID)
	if donorID == "" {
		return nil, domain.ErrInvalidDonor
	}
	if req.OrphanageID == 0 {
		return nil, domain.ErrInvalidOrphanage
	}
	if _, err := amount.ToMinorUnits(req.Amount); err != nil {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = domain.CurrencyINR
	}
	if currency != domain.CurrencyINR {
		return nil, domain.ErrInvalidCurrency
	}
	method, ok := domain.ParseMethod(string(req.Method))
	if !ok {
		return nil, domain.ErrUnsupportedMethod
	}

	now := s.clock.Now()
	donation := &domain.Donation{
		ID:          s.genID.Generate(),
		DonorID:     donorID,
		OrphanageID: req.OrphanageID,
		Amount:      req.Amount.Round(2),
		Currency:    currency,
		Method:      method,
		Status:      domain.StatusPending,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, donation); err != nil {
		return nil, fmt.Errorf("insert donation: %w", err)
	}

	obslogger.WithDonation(s.log, donation.ID).Info("donation created",
		zap.String("method", string(donation.Method)),
		zap.String("amount", donation.Amount.StringFixed(2)),
	)
	return donation, nil
}

func (s *Service) ApplyStatus(ctx context.Context, req domain.ApplyStatusRequest) (domain.ApplyResult, error) {
	if req.DonationID == 0 {
		return domain.ApplyResult{}, domain.ErrNotFound
	}
	log := obslogger.WithDonation(obslogger.WithContext(ctx, s.log), req.DonationID).With(
		zap.String("outcome", string(req.Outcome)),
	)

	if req.Outcome == domain.OutcomePending {
		donation, err := s.Get(ctx, req.DonationID)
		if err != nil {
			return domain.ApplyResult{}, err
		}
		log.Debug("pending outcome ignored", zap.String("status", string(donation.Status)))
		return domain.ApplyResult{Donation: donation}, nil
	}

	target, ok := req.Outcome.Status()
	if !ok {
		return domain.ApplyResult{}, domain.ErrInvalidOutcome
	}

	result, err := s.settle(ctx, req, target, log)
	if err != nil {
		return result, err
	}

	if result.Changed {
		s.obsMetrics.RecordTransition(ctx, string(result.Donation.Method), string(target))
		log.Info("donation settled",
			zap.String("status", string(target)),
			zap.String("provider_transaction_id", req.ProviderTransactionID),
		)
		if s.notifier != nil {
			s.notifier.DonationSettled(ctx, *result.Donation)
		}
	}
	return result, nil
}

// settle runs the locked read-modify-write. Nothing else happens while the lock is held.
func (s *Service) settle(ctx context.Context, req domain.ApplyStatusRequest, target domain.Status, log *zap.Logger) (domain.ApplyResult, error) {
	release := s.acquire(ctx, req.DonationID.String())
	defer release()

	current, err := s.repo.FindByID(ctx, s.db, req.DonationID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if current == nil {
		return domain.ApplyResult{}, domain.ErrNotFound
	}

	if current.Status == domain.StatusPending {
		now := s.clock.Now()
		won, err := s.repo.CompareAndSettle(ctx, s.db, current.ID, target, req.ProviderTransactionID, now)
		if err != nil {
			return domain.ApplyResult{}, fmt.Errorf("settle donation: %w", err)
		}
		if won {
			current, err = s.repo.FindByID(ctx, s.db, req.DonationID)
			if err != nil {
				return domain.ApplyResult{}, err
			}
			return domain.ApplyResult{Donation: current, Changed: true}, nil
		}
		// another replica settled it between our read and write
		current, err = s.repo.FindByID(ctx, s.db, req.DonationID)
		if err != nil {
			return domain.ApplyResult{}, err
		}
	}

	if current.Status == target {
		log.Debug("duplicate terminal outcome ignored", zap.String("status", string(current.Status)))
		return domain.ApplyResult{Donation: current}, nil
	}

	s.obsMetrics.RecordConflictingStatus(ctx, string(current.Status), string(target))
	log.Error("conflicting terminal status rejected",
		zap.String("status", string(current.Status)),
		zap.String("attempted", string(target)),
		zap.String("provider_transaction_id", req.ProviderTransactionID),
	)
	return domain.ApplyResult{Donation: current}, domain.ErrConflictingStatus
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Donation, error) {
	donation, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if donation == nil {
		return nil, domain.ErrNotFound
	}
	return donation, nil
}

func (s *Service) GetForDonor(ctx context.Context, donorID string, id snowflake.ID) (*domain.Donation, error) {
	donation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if donation.DonorID != strings.TrimSpace(donorID) {
		return nil, domain.ErrNotFound
	}
	return donation, nil
}

func (s *Service) ListByDonor(ctx context.Context, req domain.ListDonationsRequest) (domain.ListDonationsResponse, error) {
	donorID := strings.TrimSpace(req.DonorID)
	if donorID == "" {
		return domain.ListDonationsResponse{}, domain.ErrInvalidDonor
	}

	var afterID snowflake.ID
	if token := strings.TrimSpace(req.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListDonationsResponse{}, fmt.Errorf("decode page token: %w", err)
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListDonationsResponse{}, fmt.Errorf("decode page token: %w", err)
		}
	}

	size := req.Pagination.Size()
	rows, err := s.repo.ListByDonor(ctx, s.db, donorID, afterID, size+1)
	if err != nil {
		return domain.ListDonationsResponse{}, err
	}

	var encodeErr error
	rows, info := pagination.BuildCursorPageInfo(rows, size, func(d *domain.Donation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: d.ID.String()})
		if err != nil {
			encodeErr = err
		}
		return token
	})
	if encodeErr != nil {
		return domain.ListDonationsResponse{}, encodeErr
	}
	if rows == nil {
		rows = []*domain.Donation{}
	}
	return domain.ListDonationsResponse{Donations: rows, PageInfo: info}, nil
}

func (s *Service) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Donation, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListByStatus(ctx, s.db, status, limit)
}

func (s *Service) CountPendingBefore(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.CountByStatusBefore(ctx, s.db, domain.StatusPending, before)
}

var _ domain.Service = (*Service)(nil)

// IsConflict reports whether err is a rejected terminal-to-terminal transition.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrConflictingStatus)
}
