package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Methods that settle synchronously at the counter.
var counterMethods = map[string]bool{
	model.MethodCash:   true,
	model.MethodCard:   true,
	model.MethodBank:   true,
	model.MethodCredit: true,
}

type PaymentService interface {
	RecordPayment(ctx context.Context, actor Actor, req dto.RecordPaymentRequest) (*dto.PaymentResponse, error)
	Refund(ctx context.Context, actor Actor, paymentID uuid.UUID, req dto.RefundRequest) (*dto.PaymentResponse, error)
	ListForJob(ctx context.Context, jobID uuid.UUID) ([]dto.PaymentResponse, error)
	Balance(ctx context.Context, jobID uuid.UUID) (*dto.BalanceResponse, error)
	RedeemPoints(ctx context.Context, actor Actor, customerID uuid.UUID, req dto.RedeemPointsRequest) (*dto.LoyaltyResponse, error)
}

type paymentService struct {
	repos  Repos
	settle *settler
	audit  auditor
	opts   Options
}

func NewPaymentService(repos Repos, opts Options) PaymentService {
	opts = opts.withDefaults()
	return &paymentService{
		repos:  repos,
		settle: newSettler(repos, opts),
		audit:  auditor{repo: repos.Activity},
		opts:   opts,
	}
}

// ── RecordPayment ────────────────────────────────────────────────────────────
//   1. Validate amount and method
//   2. BEGIN TX: lock job, check status and remaining balance, insert the
//      completed payment, bump the open drawer, settle if now fully paid
//   3. COMMIT

func (s *paymentService) RecordPayment(ctx context.Context, actor Actor, req dto.RecordPaymentRequest) (*dto.PaymentResponse, error) {
	jobID, err := parseID(req.JobID, "job_id")
	if err != nil {
		return nil, err
	}
	amount := money(req.Amount)
	if amount.Sign() <= 0 {
		return nil, apierror.Validation("amount must be greater than zero")
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == model.MethodMpesa {
		return nil, apierror.Validation("mpesa payments are initiated through STK push")
	}
	if !counterMethods[method] {
		return nil, apierror.Validation("unknown payment method %q", req.Method)
	}

	var payment model.Payment
	var jobStatus string
	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		job, err := s.repos.Jobs.LockByID(ctx, tx, jobID)
		if err != nil {
			return notFound(err, "job %s not found", jobID)
		}
		switch job.Status {
		case model.JobPaid:
			return apierror.AlreadyPaid("job %s is already paid", job.JobNumber)
		case model.JobCancelled:
			return apierror.Conflict("job %s is cancelled", job.JobNumber)
		}

		net, err := s.settle.netPaid(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		remaining := job.FinalAmount.Sub(net)
		if amount.GreaterThan(remaining) {
			return apierror.ExceedsBalance("amount %s exceeds the remaining balance %s", amount.StringFixed(2), remaining.StringFixed(2))
		}

		payment = model.Payment{
			JobID:       job.ID,
			BranchID:    job.BranchID,
			Amount:      amount,
			Method:      method,
			Status:      model.PaymentCompleted,
			ReferenceNo: req.ReferenceNo,
			ReceivedBy:  actor.UserID,
		}
		if req.Notes != nil {
			payment.Notes = strings.TrimSpace(*req.Notes)
		}
		if err := s.repos.Payments.Create(ctx, tx, &payment); err != nil {
			return err
		}
		if err := s.settle.recordSale(ctx, tx, &payment, amount, job.JobNumber); err != nil {
			return err
		}
		if _, err := s.settle.settleIfPaid(ctx, tx, job); err != nil {
			return err
		}
		jobStatus = job.Status
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.opts.Metrics.Payment(method, model.PaymentCompleted, amount.InexactFloat64())
	s.audit.record(ctx, actor, "payment.record", "payment", payment.ID, method+" "+amount.StringFixed(2))
	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("job_id", jobID.String()).
		Str("method", method).
		Str("amount", amount.StringFixed(2)).
		Str("job_status", jobStatus).
		Msg("payment recorded")
	return paymentToResponse(&payment, jobStatus), nil
}

// ── Refund ───────────────────────────────────────────────────────────────────
// Lock order is payment then job, same as the callback path.

func (s *paymentService) Refund(ctx context.Context, actor Actor, paymentID uuid.UUID, req dto.RefundRequest) (*dto.PaymentResponse, error) {
	amount := money(req.Amount)
	if amount.Sign() <= 0 {
		return nil, apierror.Validation("refund amount must be greater than zero")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apierror.Validation("refund reason is required")
	}

	var payment *model.Payment
	var jobStatus string
	txErr := runTx(ctx, s.repos.Payments.DB(), func(tx *gorm.DB) error {
		p, err := s.repos.Payments.LockByID(ctx, tx, paymentID)
		if err != nil {
			return notFound(err, "payment %s not found", paymentID)
		}
		job, err := s.repos.Jobs.LockByID(ctx, tx, p.JobID)
		if err != nil {
			return notFound(err, "job %s not found", p.JobID)
		}
		if p.Status != model.PaymentCompleted && p.Status != model.PaymentPartial {
			return apierror.Conflict("payment is %s and cannot be refunded", p.Status)
		}
		refundable := p.Amount.Sub(p.RefundedAmount)
		if amount.GreaterThan(refundable) {
			return apierror.ExceedsBalance("refund %s exceeds the refundable %s", amount.StringFixed(2), refundable.StringFixed(2))
		}

		p.RefundedAmount = p.RefundedAmount.Add(amount)
		if p.RefundedAmount.Equal(p.Amount) {
			p.Status = model.PaymentRefunded
		} else {
			p.Status = model.PaymentPartial
		}
		p.Notes = appendNote(p.Notes, fmt.Sprintf("refund %s: %s", amount.StringFixed(2), reason), s.opts.Now())
		if err := s.repos.Payments.Save(ctx, tx, p); err != nil {
			return err
		}

		// Spend is only credited when the job settles.
		if job.CustomerID != nil && job.Status == model.JobPaid {
			if err := s.repos.Customers.SubtractSpend(ctx, tx, *job.CustomerID, amount); err != nil {
				return err
			}
		}
		if p.Status == model.PaymentRefunded && job.Status == model.JobPaid {
			net, err := s.settle.netPaid(ctx, tx, job.ID)
			if err != nil {
				return err
			}
			if net.LessThan(job.FinalAmount) {
				reverted, err := s.repos.Jobs.RevertPaid(ctx, tx, job.ID)
				if err != nil {
					return err
				}
				if reverted {
					job.Status = model.JobCompleted
					s.opts.Metrics.JobTransition(model.JobCompleted)
				}
			}
		}
		if err := s.settle.recordRefund(ctx, tx, p, amount, reason); err != nil {
			return err
		}
		payment = p
		jobStatus = job.Status
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.opts.Metrics.Payment(payment.Method, model.PaymentRefunded, amount.InexactFloat64())
	s.audit.record(ctx, actor, "payment.refund", "payment", paymentID, amount.StringFixed(2)+": "+reason)
	log.Info().
		Str("payment_id", paymentID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("status", payment.Status).
		Msg("payment refunded")
	return paymentToResponse(payment, jobStatus), nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *paymentService) ListForJob(ctx context.Context, jobID uuid.UUID) ([]dto.PaymentResponse, error) {
	job, err := s.repos.Jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, notFound(err, "job %s not found", jobID)
	}
	out := make([]dto.PaymentResponse, 0, len(job.Payments))
	for i := range job.Payments {
		out = append(out, *paymentToResponse(&job.Payments[i], ""))
	}
	return out, nil
}

func (s *paymentService) Balance(ctx context.Context, jobID uuid.UUID) (*dto.BalanceResponse, error) {
	job, err := s.repos.Jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, notFound(err, "job %s not found", jobID)
	}
	paid := money(model.NetPaid(job.Payments))
	remaining := job.FinalAmount.Sub(paid)
	if remaining.Sign() < 0 {
		remaining = decimal.Zero
	}
	return &dto.BalanceResponse{
		JobID:       job.ID.String(),
		JobStatus:   job.Status,
		FinalAmount: job.FinalAmount,
		PaidAmount:  paid,
		Remaining:   remaining,
	}, nil
}

// ── Loyalty ──────────────────────────────────────────────────────────────────

// RedeemPoints spends up to req.Points; the balance never goes below zero.
func (s *paymentService) RedeemPoints(ctx context.Context, actor Actor, customerID uuid.UUID, req dto.RedeemPointsRequest) (*dto.LoyaltyResponse, error) {
	if req.Points <= 0 {
		return nil, apierror.Validation("points must be positive")
	}
	jobID, err := parseOptionalID(req.JobID, "job_id")
	if err != nil {
		return nil, err
	}

	var redeemed, balance int
	txErr := runTx(ctx, s.repos.Customers.DB(), func(tx *gorm.DB) error {
		c, err := s.repos.Customers.LockCustomer(ctx, tx, customerID)
		if err != nil {
			return notFound(err, "customer %s not found", customerID)
		}
		if jobID != nil {
			if _, err := s.repos.Jobs.FindByID(ctx, tx, *jobID); err != nil {
				return notFound(err, "job %s not found", *jobID)
			}
		}
		if c.LoyaltyPoints <= 0 {
			return apierror.Conflict("customer has no loyalty points to redeem")
		}
		redeemed = min(req.Points, c.LoyaltyPoints)
		balance = c.LoyaltyPoints - redeemed
		if err := s.repos.Customers.SetPoints(ctx, tx, c.ID, balance); err != nil {
			return err
		}
		return s.repos.Customers.CreateLoyaltyTransaction(ctx, tx, &model.LoyaltyTransaction{
			CustomerID:   c.ID,
			JobID:        jobID,
			Type:         model.LoyaltyRedeemed,
			Points:       -redeemed,
			BalanceAfter: balance,
			Description:  fmt.Sprintf("redeemed %d points", redeemed),
		})
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "loyalty.redeem", "customer", customerID, fmt.Sprintf("%d", redeemed))
	return &dto.LoyaltyResponse{
		CustomerID:    customerID.String(),
		Points:        redeemed,
		LoyaltyPoints: balance,
	}, nil
}
