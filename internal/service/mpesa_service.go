package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Callback outcomes, also used as metric labels.
const (
	OutcomeCompleted = "completed"
	OutcomeOverpaid  = "overpaid"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

// MpesaGateway is the subset of the Daraja client the reconciler needs.
type MpesaGateway interface {
	STKPush(ctx context.Context, in infra.STKPushInput) (*infra.STKPushResult, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (*infra.STKQueryResult, error)
}

// ReconcileReport summarises one sweep over stale pending payments.
type ReconcileReport struct {
	Checked      int
	Completed    int
	Failed       int
	Expired      int
	StillPending int
	// Stopped is set when the sweep gave up early because the breaker is open
	Stopped bool
}

type MpesaService interface {
	Initiate(ctx context.Context, actor Actor, req dto.STKPushRequest) (*dto.STKPushResponse, error)
	// HandleCallback applies a gateway result. It is idempotent: a result for
	// a reference that is no longer pending is ignored.
	HandleCallback(ctx context.Context, cb dto.MpesaSTKCallback) (string, error)
	Status(ctx context.Context, checkoutRequestID string) (*dto.MpesaStatusResponse, error)
	ReconcileStale(ctx context.Context, olderThan, expireAfter time.Duration, limit int) (*ReconcileReport, error)
}

type mpesaService struct {
	repos   Repos
	gateway MpesaGateway
	breaker *infra.CircuitBreaker
	settle  *settler
	audit   auditor
	opts    Options
}

// NewMpesaService builds the reconciler. breaker may be nil.
func NewMpesaService(repos Repos, gateway MpesaGateway, breaker *infra.CircuitBreaker, opts Options) MpesaService {
	opts = opts.withDefaults()
	return &mpesaService{
		repos:   repos,
		gateway: gateway,
		breaker: breaker,
		settle:  newSettler(repos, opts),
		audit:   auditor{repo: repos.Activity},
		opts:    opts,
	}
}

func (s *mpesaService) execute(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

// gatewayError classifies a push/query failure, keeping the provider's own
// description for operators.
func gatewayError(err error) error {
	if errors.Is(err, infra.ErrCircuitOpen) {
		return apierror.External("payment gateway temporarily unavailable", err)
	}
	var gwErr *infra.GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return apierror.External(gwErr.Message, err)
	}
	return apierror.External("payment gateway request failed", err)
}

// ── Initiate ─────────────────────────────────────────────────────────────────
//   1. Validate phone, amount and the job's remaining balance (read only)
//   2. STK push through the breaker; no transaction is open during the call
//   3. BEGIN TX: lock job, insert the pending payment keyed by checkout id

func (s *mpesaService) Initiate(ctx context.Context, actor Actor, req dto.STKPushRequest) (*dto.STKPushResponse, error) {
	jobID, err := parseID(req.JobID, "job_id")
	if err != nil {
		return nil, err
	}
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	amount := money(req.Amount)
	if amount.Sign() <= 0 || !amount.Equal(amount.Truncate(0)) {
		return nil, apierror.Validation("amount must be a positive whole number")
	}

	job, err := s.repos.Jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, notFound(err, "job %s not found", jobID)
	}
	switch job.Status {
	case model.JobPaid:
		return nil, apierror.AlreadyPaid("job %s is already paid", job.JobNumber)
	case model.JobCancelled:
		return nil, apierror.Conflict("job %s is cancelled", job.JobNumber)
	}
	remaining := job.FinalAmount.Sub(model.NetPaid(job.Payments))
	if amount.GreaterThan(remaining) {
		return nil, apierror.ExceedsBalance("amount %s exceeds the remaining balance %s", amount.StringFixed(0), remaining.StringFixed(2))
	}

	var res *infra.STKPushResult
	err = s.execute(func() error {
		r, err := s.gateway.STKPush(ctx, infra.STKPushInput{
			Amount:           amount.IntPart(),
			Phone:            phone,
			AccountReference: job.JobNumber,
			Description:      "Car wash",
		})
		res = r
		return err
	})
	if err != nil {
		s.opts.Metrics.Payment(model.MethodMpesa, "push_failed", 0)
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("stk push failed")
		return nil, gatewayError(err)
	}

	payload, _ := json.Marshal(res)
	ref := res.CheckoutRequestID
	payment := model.Payment{
		JobID:          job.ID,
		BranchID:       job.BranchID,
		Amount:         amount,
		Method:         model.MethodMpesa,
		Status:         model.PaymentPending,
		ReferenceNo:    &ref,
		PhoneNumber:    &phone,
		ReceivedBy:     actor.UserID,
		GatewayPayload: datatypes.JSON(payload),
	}
	// The push already reached the payer, so the pending row is recorded even
	// if the job changed meanwhile; the callback sorts out where the money goes.
	txErr := runTx(ctx, s.repos.Payments.DB(), func(tx *gorm.DB) error {
		if _, err := s.repos.Jobs.LockByID(ctx, tx, job.ID); err != nil {
			return notFound(err, "job %s not found", job.ID)
		}
		return s.repos.Payments.Create(ctx, tx, &payment)
	})
	if txErr != nil {
		log.Error().Err(txErr).
			Str("checkout_request_id", ref).
			Str("job_id", jobID.String()).
			Msg("pending payment not recorded after stk push")
		return nil, txErr
	}

	s.opts.Metrics.Payment(model.MethodMpesa, model.PaymentPending, amount.InexactFloat64())
	s.audit.record(ctx, actor, "mpesa.initiate", "payment", payment.ID, ref)
	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("job_id", jobID.String()).
		Str("checkout_request_id", ref).
		Msg("stk push sent")
	return &dto.STKPushResponse{
		PaymentID:         payment.ID.String(),
		CheckoutRequestID: ref,
		MerchantRequestID: res.MerchantRequestID,
		CustomerMessage:   res.CustomerMessage,
		Amount:            amount,
		PhoneNumber:       phone,
		Status:            payment.Status,
	}, nil
}

// ── HandleCallback ───────────────────────────────────────────────────────────

func (s *mpesaService) HandleCallback(ctx context.Context, cb dto.MpesaSTKCallback) (string, error) {
	outcome, err := s.resolve(ctx, cb)
	if err != nil {
		log.Error().Err(err).
			Str("checkout_request_id", cb.CheckoutRequestID).
			Msg("mpesa callback processing failed")
		return "", err
	}
	s.opts.Metrics.MpesaCallback(outcome)
	log.Info().
		Str("checkout_request_id", cb.CheckoutRequestID).
		Int("result_code", cb.ResultCode).
		Str("outcome", outcome).
		Msg("mpesa callback handled")
	return outcome, nil
}

// resolve applies a definitive gateway result under the payment and job locks.
func (s *mpesaService) resolve(ctx context.Context, cb dto.MpesaSTKCallback) (string, error) {
	ref := strings.TrimSpace(cb.CheckoutRequestID)
	if ref == "" {
		return OutcomeIgnored, nil
	}
	outcome := OutcomeIgnored
	txErr := runTx(ctx, s.repos.Payments.DB(), func(tx *gorm.DB) error {
		p, err := s.repos.Payments.LockPendingByReference(ctx, tx, ref)
		if repository.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		job, err := s.repos.Jobs.LockByID(ctx, tx, p.JobID)
		if err != nil {
			return err
		}
		outcome, err = s.apply(ctx, tx, p, job, cb)
		return err
	})
	return outcome, txErr
}

func (s *mpesaService) apply(ctx context.Context, tx *gorm.DB, p *model.Payment, job *model.Job, cb dto.MpesaSTKCallback) (string, error) {
	now := s.opts.Now()
	if raw, err := json.Marshal(cb); err == nil {
		p.GatewayPayload = datatypes.JSON(raw)
	}

	if cb.ResultCode != 0 {
		p.Status = model.PaymentFailed
		p.Notes = appendNote(p.Notes, fmt.Sprintf("gateway: %s (code %d)", cb.ResultDesc, cb.ResultCode), now)
		if err := s.repos.Payments.Save(ctx, tx, p); err != nil {
			return "", err
		}
		s.opts.Metrics.Payment(model.MethodMpesa, model.PaymentFailed, p.Amount.InexactFloat64())
		return OutcomeFailed, nil
	}

	md := cb.CallbackMetadata
	if receipt := metaString(md.Lookup("MpesaReceiptNumber")); receipt != "" {
		p.MpesaReceipt = &receipt
	}
	if phone := metaString(md.Lookup("PhoneNumber")); phone != "" {
		p.PhoneNumber = &phone
	}
	if raw := metaString(md.Lookup("TransactionDate")); raw != "" {
		if t, err := time.ParseInLocation("20060102150405", raw, s.opts.Location); err == nil {
			p.TransactionDate = &t
		}
	}
	if raw := metaString(md.Lookup("Amount")); raw != "" {
		if confirmed, err := decimal.NewFromString(raw); err == nil && !confirmed.Equal(p.Amount) {
			log.Warn().
				Str("checkout_request_id", cb.CheckoutRequestID).
				Str("requested", p.Amount.StringFixed(2)).
				Str("confirmed", confirmed.StringFixed(2)).
				Msg("confirmed amount differs from requested amount")
		}
	}

	// Net paid still excludes this row: it is pending until saved below.
	net, err := s.settle.netPaid(ctx, tx, job.ID)
	if err != nil {
		return "", err
	}
	capacity := job.FinalAmount.Sub(net)
	if job.Status == model.JobCancelled || capacity.Sign() < 0 {
		capacity = decimal.Zero
	}

	outcome := OutcomeCompleted
	p.Status = model.PaymentCompleted
	if p.Amount.GreaterThan(capacity) {
		excess := p.Amount.Sub(capacity)
		p.Status = model.PaymentPartial
		p.RefundedAmount = excess
		p.Notes = appendNote(p.Notes, fmt.Sprintf("overpayment of %s owed back to customer", excess.StringFixed(2)), now)
		outcome = OutcomeOverpaid
		log.Warn().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Str("job_id", job.ID.String()).
			Str("excess", excess.StringFixed(2)).
			Msg("mobile payment exceeds job balance")
	}
	if err := s.repos.Payments.Save(ctx, tx, p); err != nil {
		return "", err
	}
	if err := s.settle.recordSale(ctx, tx, p, p.NetAmount(), job.JobNumber); err != nil {
		return "", err
	}
	if job.Status != model.JobCancelled {
		if _, err := s.settle.settleIfPaid(ctx, tx, job); err != nil {
			return "", err
		}
	}
	s.opts.Metrics.Payment(model.MethodMpesa, p.Status, p.Amount.InexactFloat64())
	return outcome, nil
}

// metaString renders a metadata value as text. Values arrive as strings or
// bare JSON numbers depending on the item.
func metaString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// ── Status ───────────────────────────────────────────────────────────────────

func (s *mpesaService) Status(ctx context.Context, checkoutRequestID string) (*dto.MpesaStatusResponse, error) {
	p, err := s.repos.Payments.FindByReference(ctx, strings.TrimSpace(checkoutRequestID))
	if err != nil {
		return nil, notFound(err, "no payment for checkout request %s", checkoutRequestID)
	}
	return &dto.MpesaStatusResponse{
		CheckoutRequestID: checkoutRequestID,
		PaymentID:         p.ID.String(),
		JobID:             p.JobID.String(),
		Status:            p.Status,
		Amount:            p.Amount,
		MpesaReceipt:      p.MpesaReceipt,
		PhoneNumber:       p.PhoneNumber,
		Notes:             p.Notes,
	}, nil
}

// ── ReconcileStale ───────────────────────────────────────────────────────────
// Pending rows older than olderThan are queried at the gateway; definitive
// answers go through the callback routine. Rows older than expireAfter are
// failed without asking. The sweep stops as soon as the breaker opens.

func (s *mpesaService) ReconcileStale(ctx context.Context, olderThan, expireAfter time.Duration, limit int) (*ReconcileReport, error) {
	if limit <= 0 {
		limit = 50
	}
	now := s.opts.Now()
	rows, err := s.repos.Payments.ListStalePending(ctx, model.MethodMpesa, now.Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		p := &rows[i]
		if p.ReferenceNo == nil || *p.ReferenceNo == "" {
			continue
		}
		ref := *p.ReferenceNo
		report.Checked++

		if expireAfter > 0 && now.Sub(p.CreatedAt) > expireAfter {
			outcome, err := s.resolve(ctx, dto.MpesaSTKCallback{
				CheckoutRequestID: ref,
				ResultCode:        -1,
				ResultDesc:        "expired without confirmation",
			})
			if err != nil {
				log.Error().Err(err).Str("checkout_request_id", ref).Msg("expire pending payment failed")
				continue
			}
			if outcome == OutcomeFailed {
				report.Expired++
			}
			continue
		}

		var res *infra.STKQueryResult
		err := s.execute(func() error {
			r, err := s.gateway.STKQuery(ctx, ref)
			res = r
			return err
		})
		if errors.Is(err, infra.ErrCircuitOpen) {
			report.Stopped = true
			break
		}
		var gwErr *infra.GatewayError
		if errors.As(err, &gwErr) && gwErr.Pending() {
			report.StillPending++
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("checkout_request_id", ref).Msg("stk query failed")
			report.StillPending++
			continue
		}
		code, err := res.Code()
		if err != nil {
			report.StillPending++
			continue
		}

		outcome, err := s.HandleCallback(ctx, dto.MpesaSTKCallback{
			MerchantRequestID: res.MerchantRequestID,
			CheckoutRequestID: ref,
			ResultCode:        code,
			ResultDesc:        res.ResultDesc,
		})
		if err != nil {
			continue
		}
		switch outcome {
		case OutcomeCompleted, OutcomeOverpaid:
			report.Completed++
		case OutcomeFailed:
			report.Failed++
		}
	}

	if report.Checked > 0 {
		log.Info().
			Int("checked", report.Checked).
			Int("completed", report.Completed).
			Int("failed", report.Failed).
			Int("expired", report.Expired).
			Int("still_pending", report.StillPending).
			Bool("stopped", report.Stopped).
			Msg("pending mobile payments reconciled")
	}
	return report, nil
}
