package service

import (
	"context"
	"fmt"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/metrics"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// settler holds the fully-paid routine and the drawer hook shared by manual
// payments, gateway callbacks and job edits. Every method runs inside the
// caller's transaction with the job row already locked.
type settler struct {
	jobs        repository.JobRepository
	payments    repository.PaymentRepository
	bays        repository.BayRepository
	customers   repository.CustomerRepository
	sessions    repository.CashSessionRepository
	loyaltyRate int
	metrics     *metrics.Metrics
	now         func() time.Time
}

// netPaid recomputes the settled total from the payment rows visible in tx.
func (s *settler) netPaid(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (decimal.Decimal, error) {
	payments, err := s.payments.ListForJob(ctx, tx, jobID)
	if err != nil {
		return decimal.Zero, err
	}
	return money(model.NetPaid(payments)), nil
}

// settleIfPaid marks the job paid once net paid covers the final amount,
// releases its bay and credits the linked customer. It reports whether this
// call performed the transition; a job already paid is left alone.
func (s *settler) settleIfPaid(ctx context.Context, tx *gorm.DB, job *model.Job) (bool, error) {
	net, err := s.netPaid(ctx, tx, job.ID)
	if err != nil {
		return false, err
	}
	if net.LessThan(job.FinalAmount) {
		return false, nil
	}
	return s.markPaid(ctx, tx, job)
}

func (s *settler) markPaid(ctx context.Context, tx *gorm.DB, job *model.Job) (bool, error) {
	ok, err := s.jobs.MarkPaid(ctx, tx, job.ID, s.now())
	if err != nil || !ok {
		return false, err
	}
	if job.BayID != nil {
		if err := s.bays.Release(ctx, tx, *job.BayID); err != nil {
			return false, err
		}
	}
	job.Status = model.JobPaid
	job.BayID = nil
	s.metrics.JobTransition(model.JobPaid)

	if job.CustomerID != nil {
		if err := s.customers.AddSpend(ctx, tx, *job.CustomerID, job.FinalAmount, 1); err != nil {
			return false, err
		}
		if err := s.accrueLoyalty(ctx, tx, job); err != nil {
			return false, err
		}
	}
	log.Info().
		Str("job_id", job.ID.String()).
		Str("job_number", job.JobNumber).
		Str("final_amount", job.FinalAmount.StringFixed(2)).
		Msg("job paid")
	return true, nil
}

// accrueLoyalty credits floor(final/100) * rate points.
func (s *settler) accrueLoyalty(ctx context.Context, tx *gorm.DB, job *model.Job) error {
	points := int(job.FinalAmount.Div(hundred).Floor().IntPart()) * s.loyaltyRate
	if points <= 0 {
		return nil
	}
	c, err := s.customers.LockCustomer(ctx, tx, *job.CustomerID)
	if err != nil {
		return err
	}
	balance := c.LoyaltyPoints + points
	if err := s.customers.SetPoints(ctx, tx, c.ID, balance); err != nil {
		return err
	}
	jobID := job.ID
	return s.customers.CreateLoyaltyTransaction(ctx, tx, &model.LoyaltyTransaction{
		CustomerID:   c.ID,
		JobID:        &jobID,
		Type:         model.LoyaltyEarned,
		Points:       points,
		BalanceAfter: balance,
		Description:  fmt.Sprintf("earned on job %s", job.JobNumber),
	})
}

// ── Drawer hook ──────────────────────────────────────────────────────────────

// recordSale adds a settled payment to the branch's open drawer session.
// Without an open session the drawer is left untouched.
func (s *settler) recordSale(ctx context.Context, tx *gorm.DB, p *model.Payment, amount decimal.Decimal, jobNumber string) error {
	if amount.Sign() <= 0 {
		return nil
	}
	session, err := s.sessions.FindOpenByBranch(ctx, tx, p.BranchID)
	if repository.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	d := repository.SessionDelta{TotalSales: amount}
	switch p.Method {
	case model.MethodCash:
		d.CashSales = amount
	case model.MethodMpesa:
		d.MobileSales = amount
	case model.MethodCard:
		d.CardSales = amount
	}
	if err := s.sessions.ApplyDelta(ctx, tx, session.ID, d); err != nil {
		return err
	}
	ref := p.ID
	return s.sessions.CreateMovement(ctx, tx, &model.CashMovement{
		CashSessionID: session.ID,
		Type:          model.MovementSale,
		Method:        p.Method,
		Amount:        amount,
		Description:   fmt.Sprintf("payment for job %s", jobNumber),
		ReferenceID:   &ref,
	})
}

// recordRefund reverses a cash refund out of the open drawer, if any.
func (s *settler) recordRefund(ctx context.Context, tx *gorm.DB, p *model.Payment, amount decimal.Decimal, reason string) error {
	if p.Method != model.MethodCash {
		return nil
	}
	session, err := s.sessions.FindOpenByBranch(ctx, tx, p.BranchID)
	if repository.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	neg := amount.Neg()
	if err := s.sessions.ApplyDelta(ctx, tx, session.ID, repository.SessionDelta{
		CashSales:  neg,
		TotalSales: neg,
	}); err != nil {
		return err
	}
	ref := p.ID
	return s.sessions.CreateMovement(ctx, tx, &model.CashMovement{
		CashSessionID: session.ID,
		Type:          model.MovementRefund,
		Method:        p.Method,
		Amount:        neg,
		Description:   "refund: " + reason,
		ReferenceID:   &ref,
	})
}
