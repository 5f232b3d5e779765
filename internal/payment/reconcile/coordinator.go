package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/donara/internal/amount"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	obslogger "github.com/smallbiznis/donara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	"github.com/smallbiznis/donara/internal/payment/adapters"
	"github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultProviderTimeout = 15 * time.Second
	defaultRedirectTimeout = 8 * time.Second
	defaultAsyncTimeout    = 30 * time.Second
	defaultAsyncWorkers    = 16

	// MaxAttempts bounds how often a deferred trigger is re-queried.
	MaxAttempts  = 8
	retryBase    = 30 * time.Second
	retryCeiling = 30 * time.Minute
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Ledger        donationdomain.Service
	Adapters      *adapters.Registry
	Notifications domain.NotificationRepository
	Cfg           config.Config
	Clock         clock.Clock         `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

// Coordinator drives a donation from creation to a terminal status across
// every notification channel a provider uses.
type Coordinator struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	ledger        donationdomain.Service
	adapters      *adapters.Registry
	notifications domain.NotificationRepository
	clock         clock.Clock
	obsMetrics    *obsmetrics.Metrics

	providerTimeout time.Duration
	redirectTimeout time.Duration
	asyncTimeout    time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(p Params) *Coordinator {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	payments := p.Cfg.Payments
	workers := payments.AsyncWorkers
	if workers <= 0 {
		workers = defaultAsyncWorkers
	}
	return &Coordinator{
		db:              p.DB,
		log:             p.Log.Named("payment.reconcile"),
		genID:           p.GenID,
		ledger:          p.Ledger,
		adapters:        p.Adapters,
		notifications:   p.Notifications,
		clock:           c,
		obsMetrics:      p.ObsMetrics,
		providerTimeout: orDefault(payments.ProviderTimeout, defaultProviderTimeout),
		redirectTimeout: orDefault(payments.RedirectTimeout, defaultRedirectTimeout),
		asyncTimeout:    orDefault(payments.AsyncTimeout, defaultAsyncTimeout),
		sem:             make(chan struct{}, workers),
	}
}

type CreateRequest struct {
	DonorID     string
	OrphanageID snowflake.ID
	Amount      decimal.Decimal
	Currency    string
	Method      string
	Note        string
}

type CreateResult struct {
	Donation        *donationdomain.Donation `json:"-"`
	Handle          *domain.ProviderHandle   `json:"-"`
	ProviderPayload map[string]any           `json:"provider_payload"`
}

// Create persists a pending donation and starts payment with its provider. A
// failed initiation leaves the pending row in place and returns it alongside
// an error wrapping ErrPaymentInitiationFailed.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	method, ok := donationdomain.ParseMethod(req.Method)
	if !ok {
		return CreateResult{}, donationdomain.ErrUnsupportedMethod
	}
	minor, err := amount.ToMinorUnits(req.Amount)
	if err != nil {
		return CreateResult{}, err
	}

	adapter, needsProvider, err := c.adapters.ForMethod(method)
	if err != nil {
		return CreateResult{}, errors.Join(domain.ErrPaymentInitiationFailed, err)
	}

	donation, err := c.ledger.Create(ctx, donationdomain.CreateDonationRequest{
		DonorID:     req.DonorID,
		OrphanageID: req.OrphanageID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      method,
		Note:        req.Note,
	})
	if err != nil {
		return CreateResult{}, err
	}

	if !needsProvider {
		return CreateResult{
			Donation:        donation,
			ProviderPayload: map[string]any{"upi": map[string]any{"note": donation.Note}},
		}, nil
	}

	log := obslogger.WithDonation(obslogger.WithContext(ctx, c.log), donation.ID).With(
		zap.String("provider", string(adapter.Kind())),
	)

	initCtx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	handle, err := adapter.Initiate(initCtx, domain.InitiateRequest{
		DonationID:  donation.ID,
		DonorID:     donation.DonorID,
		AmountMinor: minor,
		Currency:    donation.Currency,
		ReceiptRef:  donation.ID.String(),
	})
	if err != nil {
		c.obsMetrics.RecordInitiationFailure(ctx, string(adapter.Kind()), failureReason(err))
		log.Warn("payment initiation failed", zap.Error(err))
		return CreateResult{Donation: donation}, errors.Join(domain.ErrPaymentInitiationFailed, err)
	}

	log.Info("payment initiated", zap.String("reference", handle.Reference))
	return CreateResult{
		Donation:        donation,
		Handle:          &handle,
		ProviderPayload: handle.ClientPayload,
	}, nil
}

// Ack is what the transport returns to a provider. It carries no error because
// providers retry on anything but success.
type Ack struct {
	NotificationID snowflake.ID
	Accepted       bool
	Reason         string
}

// HandleInbound records a push notification, verifies it and hands the state
// change to a background worker. Signed events are applied as they are;
// unsigned triggers are confirmed with an authoritative status query first.
func (c *Coordinator) HandleInbound(ctx context.Context, kind domain.ProviderKind, channel domain.Channel, n domain.InboundNotification) Ack {
	log := obslogger.WithContext(ctx, c.log).With(
		zap.String("provider", string(kind)),
		zap.String("channel", string(channel)),
	)

	adapter, err := c.adapters.Adapter(kind)
	if err != nil {
		c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(channel), "unknown_provider")
		log.Warn("inbound notification for unknown provider")
		return Ack{Reason: err.Error()}
	}

	record := c.record(ctx, kind, channel, "", n.Body)
	ack := Ack{NotificationID: record.ID}

	result, err := adapter.VerifyInbound(ctx, n)
	switch {
	case errors.Is(err, domain.ErrAuthenticityRejected):
		c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(channel), "rejected")
		log.Warn("inbound notification failed verification", zap.Int64("notification_id", record.ID.Int64()))
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationRejected, Error: err.Error()})
		ack.Reason = err.Error()
		return ack
	case errors.Is(err, domain.ErrEventIgnored):
		c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(channel), "ignored")
		log.Debug("inbound event ignored")
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationApplied, Outcome: "ignored"})
		ack.Accepted = true
		return ack
	case err != nil:
		c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(channel), "invalid")
		log.Warn("inbound notification unreadable", zap.Error(err))
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationFailed, Error: err.Error()})
		ack.Reason = err.Error()
		return ack
	}

	c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(channel), "accepted")
	ack.Accepted = true
	if result.RequiresQuery() {
		record.Reference = result.Reference
	} else {
		record.Reference = result.Event.Reference
	}

	c.dispatch(ctx, record, func(workCtx context.Context) {
		if result.RequiresQuery() {
			_, _ = c.query(workCtx, adapter, record, result.Reference)
			return
		}
		c.apply(workCtx, record, *result.Event)
	})
	return ack
}

type LandingStatus string

const (
	LandingSuccess LandingStatus = "success"
	LandingFailure LandingStatus = "failure"
	LandingPending LandingStatus = "pending"
)

type LandingResult struct {
	Status     LandingStatus
	DonationID snowflake.ID
}

// HandleRedirect answers a browser landing with the best status available
// within the redirect timeout. The landing itself proves nothing.
func (c *Coordinator) HandleRedirect(ctx context.Context, kind domain.ProviderKind, reference string) LandingResult {
	reference = strings.TrimSpace(reference)
	adapter, err := c.adapters.Adapter(kind)
	if err != nil || reference == "" {
		c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(domain.ChannelRedirect), "invalid")
		return LandingResult{Status: LandingPending}
	}
	c.obsMetrics.RecordInboundNotification(ctx, string(kind), string(domain.ChannelRedirect), "accepted")

	record := c.record(ctx, kind, domain.ChannelRedirect, reference, nil)
	queryCtx, cancel := context.WithTimeout(ctx, c.redirectTimeout)
	defer cancel()
	landing, _ := c.query(queryCtx, adapter, record, reference)
	return landing
}

// RequeryReference forces an authoritative status query, used by operators.
func (c *Coordinator) RequeryReference(ctx context.Context, kind domain.ProviderKind, reference string) (LandingResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return LandingResult{}, domain.ErrMissingCorrelation
	}
	adapter, err := c.adapters.Adapter(kind)
	if err != nil {
		return LandingResult{}, err
	}
	record := c.record(ctx, kind, domain.ChannelRequery, reference, nil)
	queryCtx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	return c.query(queryCtx, adapter, record, reference)
}

// Requery retries a deferred notification. The returned error is the provider
// failure, if any, so callers can count it.
func (c *Coordinator) Requery(ctx context.Context, notificationID snowflake.ID) error {
	record, err := c.notifications.FindByID(ctx, c.db, notificationID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.ErrNotificationNotFound
	}
	if record.State != domain.NotificationDeferred {
		return nil
	}
	adapter, err := c.adapters.Adapter(record.Provider)
	if err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	_, err = c.query(queryCtx, adapter, record, record.Reference)
	return err
}

// ListDue returns deferred notifications whose retry time has come.
func (c *Coordinator) ListDue(ctx context.Context, limit int) ([]*domain.NotificationRecord, error) {
	return c.notifications.ListDue(ctx, c.db, c.clock.Now(), MaxAttempts, limit)
}

// Wait blocks until in-flight background work has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown waits for background work or gives up when ctx ends.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs work detached from the request. Work that cannot get a worker
// slot before its deadline is deferred for the scheduler.
func (c *Coordinator) dispatch(ctx context.Context, record *domain.NotificationRecord, work func(context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.asyncTimeout)
		defer cancel()

		select {
		case c.sem <- struct{}{}:
		case <-workCtx.Done():
			c.log.Warn("no worker available, deferring notification", zap.Int64("notification_id", record.ID.Int64()))
			c.deferRecord(context.WithoutCancel(ctx), record, "worker_pool_exhausted")
			return
		}
		defer func() { <-c.sem }()

		defer func() {
			if r := recover(); r != nil {
				c.log.Error("notification worker panicked", zap.Any("panic", r), zap.Int64("notification_id", record.ID.Int64()))
			}
		}()
		work(workCtx)
	}()
}

// query asks the provider for the authoritative status and applies it. The
// error is returned only when the provider could not answer.
func (c *Coordinator) query(ctx context.Context, adapter domain.ProviderAdapter, record *domain.NotificationRecord, reference string) (LandingResult, error) {
	kind := string(adapter.Kind())
	log := obslogger.WithContext(ctx, c.log).With(
		zap.String("provider", kind),
		zap.String("reference", reference),
	)
	record.Reference = reference

	event, err := adapter.QueryStatus(ctx, reference)
	switch {
	case err == nil:
		c.obsMetrics.RecordStatusQuery(ctx, kind, string(event.Outcome))
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		c.obsMetrics.RecordStatusQuery(ctx, kind, "unavailable")
		log.Warn("status query unavailable", zap.Error(err))
		c.deferRecord(ctx, record, err.Error())
		return LandingResult{Status: LandingPending}, err
	default:
		c.obsMetrics.RecordStatusQuery(ctx, kind, "error")
		log.Warn("status query failed", zap.Error(err))
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationFailed, Error: err.Error(), EventType: event.EventType})
		return LandingResult{Status: LandingPending}, nil
	}

	return c.apply(ctx, record, event), nil
}

func (c *Coordinator) apply(ctx context.Context, record *domain.NotificationRecord, event domain.VerifiedEvent) LandingResult {
	log := obslogger.WithDonation(obslogger.WithContext(ctx, c.log), event.DonationID).With(
		zap.String("provider", string(event.Provider)),
		zap.String("event_type", event.EventType),
	)
	donationID := event.DonationID
	record.DonationID = &donationID
	if event.Reference != "" {
		record.Reference = event.Reference
	}
	record.Outcome = string(event.Outcome)
	record.EventType = event.EventType

	if event.Outcome == donationdomain.OutcomePending {
		c.deferRecord(ctx, record, "")
		return LandingResult{Status: LandingPending, DonationID: donationID}
	}

	result, err := c.ledger.ApplyStatus(ctx, donationdomain.ApplyStatusRequest{
		DonationID:            event.DonationID,
		Outcome:               event.Outcome,
		ProviderTransactionID: event.ProviderTransactionID,
	})
	switch {
	case err == nil:
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationApplied})
	case errors.Is(err, donationdomain.ErrConflictingStatus):
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationRejected, Error: err.Error()})
	case errors.Is(err, donationdomain.ErrNotFound):
		log.Warn("verified event for unknown donation")
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationFailed, Error: err.Error()})
		return LandingResult{Status: LandingPending, DonationID: donationID}
	default:
		log.Error("apply status failed", zap.Error(err))
		c.deferRecord(ctx, record, err.Error())
		return LandingResult{Status: LandingPending, DonationID: donationID}
	}

	return LandingResult{Status: landingFor(result.Donation), DonationID: donationID}
}

func landingFor(donation *donationdomain.Donation) LandingStatus {
	if donation == nil {
		return LandingPending
	}
	switch donation.Status {
	case donationdomain.StatusSuccess:
		return LandingSuccess
	case donationdomain.StatusFailed:
		return LandingFailure
	default:
		return LandingPending
	}
}

func (c *Coordinator) record(ctx context.Context, kind domain.ProviderKind, channel domain.Channel, reference string, body []byte) *domain.NotificationRecord {
	record := &domain.NotificationRecord{
		ID:         c.genID.Generate(),
		Provider:   kind,
		Channel:    channel,
		Reference:  reference,
		State:      domain.NotificationReceived,
		Payload:    payloadJSON(body),
		ReceivedAt: c.clock.Now(),
	}
	if err := c.notifications.Insert(ctx, c.db, record); err != nil {
		c.log.Error("record notification failed", zap.Error(err), zap.String("provider", string(kind)))
	}
	return record
}

func (c *Coordinator) deferRecord(ctx context.Context, record *domain.NotificationRecord, reason string) {
	attempts := record.Attempts + 1
	if attempts >= MaxAttempts {
		c.finish(ctx, record, domain.NotificationUpdate{State: domain.NotificationFailed, Error: firstNonEmpty(reason, "max_attempts_exceeded")})
		return
	}
	next := c.clock.Now().Add(backoff(attempts))
	c.update(ctx, record, domain.NotificationUpdate{
		State:         domain.NotificationDeferred,
		Error:         reason,
		Attempts:      attempts,
		NextAttemptAt: &next,
	})
}

func (c *Coordinator) finish(ctx context.Context, record *domain.NotificationRecord, update domain.NotificationUpdate) {
	now := c.clock.Now()
	update.Attempts = record.Attempts + 1
	update.ProcessedAt = &now
	update.NextAttemptAt = nil
	c.update(ctx, record, update)
}

func (c *Coordinator) update(ctx context.Context, record *domain.NotificationRecord, update domain.NotificationUpdate) {
	if update.DonationID == nil {
		update.DonationID = record.DonationID
	}
	if update.Reference == "" {
		update.Reference = record.Reference
	}
	if update.Outcome == "" {
		update.Outcome = record.Outcome
	}
	if update.EventType == "" {
		update.EventType = record.EventType
	}

	record.State = update.State
	record.Error = update.Error
	record.Attempts = update.Attempts
	record.NextAttemptAt = update.NextAttemptAt
	record.ProcessedAt = update.ProcessedAt
	record.DonationID = update.DonationID
	record.Reference = update.Reference
	record.Outcome = update.Outcome
	record.EventType = update.EventType

	if err := c.notifications.Update(context.WithoutCancel(ctx), c.db, record.ID, update); err != nil {
		c.log.Error("update notification failed", zap.Error(err), zap.Int64("notification_id", record.ID.Int64()))
	}
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBase << (attempt - 1)
	if delay <= 0 || delay > retryCeiling {
		return retryCeiling
	}
	return delay
}

func payloadJSON(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return datatypes.JSON("{}")
	}
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(wrapped)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "unavailable"
	case errors.Is(err, domain.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, domain.ErrInvalidConfig):
		return "config"
	default:
		return "unknown"
	}
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
