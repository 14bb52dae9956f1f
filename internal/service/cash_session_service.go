package service

import (
	"context"
	"strings"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Variance classes, as a share of the expected closing.
const (
	VarianceNormal   = "normal"
	VarianceWarning  = "warning"
	VarianceCritical = "critical"
)

var (
	warnThreshold     = decimal.NewFromInt(1)
	criticalThreshold = decimal.NewFromInt(5)
)

type CashSessionService interface {
	Open(ctx context.Context, actor Actor, req dto.OpenSessionRequest) (*dto.CashSessionResponse, error)
	Close(ctx context.Context, actor Actor, id uuid.UUID, req dto.CloseSessionRequest) (*dto.CashSessionResponse, error)
	RecordExpense(ctx context.Context, actor Actor, req dto.ExpenseRequest) (*dto.ExpenseResponse, error)
	Current(ctx context.Context, actor Actor, branchID string) (*dto.CashSessionResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.CashSessionResponse, error)
	History(ctx context.Context, actor Actor, branchID string, page, limit int) (*dto.CashSessionListResponse, error)
}

type cashSessionService struct {
	repos Repos
	audit auditor
	opts  Options
}

func NewCashSessionService(repos Repos, opts Options) CashSessionService {
	return &cashSessionService{repos: repos, audit: auditor{repo: repos.Activity}, opts: opts.withDefaults()}
}

// variancePercent is |variance| as a percentage of |expected|. With nothing
// expected, any variance counts as 100%.
func variancePercent(variance, expected decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		if variance.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return variance.Abs().Div(expected.Abs()).Mul(hundred).Round(2)
}

// ClassifyVariance maps a variance percentage to its class.
func ClassifyVariance(pct decimal.Decimal) string {
	switch {
	case pct.LessThanOrEqual(warnThreshold):
		return VarianceNormal
	case pct.LessThanOrEqual(criticalThreshold):
		return VarianceWarning
	default:
		return VarianceCritical
	}
}

// ── Open ─────────────────────────────────────────────────────────────────────

func (s *cashSessionService) Open(ctx context.Context, actor Actor, req dto.OpenSessionRequest) (*dto.CashSessionResponse, error) {
	branchID, err := branchFor(actor, req.BranchID)
	if err != nil {
		return nil, err
	}
	opening := money(req.OpeningBalance)
	if opening.Sign() < 0 {
		return nil, apierror.Validation("opening_balance cannot be negative")
	}

	session := model.CashSession{
		BranchID:        branchID,
		OperatorID:      actor.UserID,
		OpeningBalance:  opening,
		ExpectedClosing: opening,
		Status:          model.SessionOpen,
		OpenedAt:        s.opts.Now(),
	}
	txErr := runTx(ctx, s.repos.Sessions.DB(), func(tx *gorm.DB) error {
		if _, err := s.repos.Sessions.FindOpenByBranch(ctx, tx, branchID); err == nil {
			return apierror.Conflict("a cash session is already open for this branch")
		} else if !repository.IsNotFound(err) {
			return err
		}
		if err := s.repos.Sessions.CreateSession(ctx, tx, &session); err != nil {
			if repository.IsUniqueViolation(err) {
				return apierror.Conflict("a cash session is already open for this branch")
			}
			return err
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "cash_session.open", "cash_session", session.ID, opening.StringFixed(2))
	log.Info().
		Str("session_id", session.ID.String()).
		Str("branch_id", branchID.String()).
		Str("opening_balance", opening.StringFixed(2)).
		Msg("cash session opened")
	return sessionToResponse(&session), nil
}

// ── Close ────────────────────────────────────────────────────────────────────
// expected = opening + cash_sales - expenses_paid; the session is immutable
// once closed.

func (s *cashSessionService) Close(ctx context.Context, actor Actor, id uuid.UUID, req dto.CloseSessionRequest) (*dto.CashSessionResponse, error) {
	actual := money(req.ActualClosing)
	if actual.Sign() < 0 {
		return nil, apierror.Validation("actual_closing cannot be negative")
	}
	var notes *string
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		n := strings.TrimSpace(*req.Notes)
		notes = &n
	}

	var class string
	var variance decimal.Decimal
	txErr := runTx(ctx, s.repos.Sessions.DB(), func(tx *gorm.DB) error {
		session, err := s.repos.Sessions.LockByID(ctx, tx, id)
		if err != nil {
			return notFound(err, "cash session %s not found", id)
		}
		if session.Status != model.SessionOpen {
			return apierror.Conflict("cash session is already closed")
		}

		expected := session.OpeningBalance.Add(session.CashSales).Sub(session.ExpensesPaid)
		variance = actual.Sub(expected)
		class = ClassifyVariance(variancePercent(variance, expected))

		now := s.opts.Now()
		session.ExpectedClosing = expected
		session.ActualClosing = &actual
		session.Variance = &variance
		session.VarianceClass = &class
		session.Notes = notes
		session.ClosedAt = &now
		return s.repos.Sessions.Close(ctx, tx, session)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "cash_session.close", "cash_session", id, class+" "+variance.StringFixed(2))
	ev := log.Info()
	if class != VarianceNormal {
		ev = log.Warn()
	}
	if class == VarianceCritical && notes == nil {
		ev = ev.Bool("unexplained", true)
	}
	ev.Str("session_id", id.String()).
		Str("variance", variance.StringFixed(2)).
		Str("class", class).
		Msg("cash session closed")
	return s.Get(ctx, id)
}

// ── RecordExpense ────────────────────────────────────────────────────────────
// Cash expenses come out of the drawer and need an open session. Other
// methods are linked to the open session when there is one but leave the
// drawer totals alone.

func (s *cashSessionService) RecordExpense(ctx context.Context, actor Actor, req dto.ExpenseRequest) (*dto.ExpenseResponse, error) {
	branchID, err := branchFor(actor, req.BranchID)
	if err != nil {
		return nil, err
	}
	amount := money(req.Amount)
	if amount.Sign() <= 0 {
		return nil, apierror.Validation("amount must be greater than zero")
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	switch method {
	case model.MethodCash, model.MethodMpesa, model.MethodCard, model.MethodBank:
	default:
		return nil, apierror.Validation("unknown payment method %q", req.PaymentMethod)
	}

	expense := model.Expense{
		BranchID:      branchID,
		Category:      strings.TrimSpace(req.Category),
		Amount:        amount,
		PaymentMethod: method,
		Description:   strings.TrimSpace(req.Description),
		RecordedBy:    actor.UserID,
	}
	txErr := runTx(ctx, s.repos.Sessions.DB(), func(tx *gorm.DB) error {
		session, err := s.repos.Sessions.FindOpenByBranch(ctx, tx, branchID)
		switch {
		case repository.IsNotFound(err):
			if method == model.MethodCash {
				return apierror.PreconditionFailed("no open cash session for this branch")
			}
			session = nil
		case err != nil:
			return err
		}
		if session != nil {
			sid := session.ID
			expense.CashSessionID = &sid
		}
		if err := s.repos.Sessions.CreateExpense(ctx, tx, &expense); err != nil {
			return err
		}
		if method != model.MethodCash {
			return nil
		}

		if err := s.repos.Sessions.ApplyDelta(ctx, tx, session.ID, repository.SessionDelta{ExpensesPaid: amount}); err != nil {
			return err
		}
		ref := expense.ID
		return s.repos.Sessions.CreateMovement(ctx, tx, &model.CashMovement{
			CashSessionID: session.ID,
			Type:          model.MovementExpense,
			Method:        method,
			Amount:        amount.Neg(),
			Description:   expense.Category + ": " + expense.Description,
			ReferenceID:   &ref,
		})
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "expense.record", "expense", expense.ID, method+" "+amount.StringFixed(2))
	return expenseToResponse(&expense), nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *cashSessionService) Current(ctx context.Context, actor Actor, branchID string) (*dto.CashSessionResponse, error) {
	bid, err := branchFor(actor, branchID)
	if err != nil {
		return nil, err
	}
	session, err := s.repos.Sessions.FindOpenByBranch(ctx, nil, bid)
	if err != nil {
		return nil, notFound(err, "no open cash session for this branch")
	}
	return s.Get(ctx, session.ID)
}

func (s *cashSessionService) Get(ctx context.Context, id uuid.UUID) (*dto.CashSessionResponse, error) {
	session, err := s.repos.Sessions.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "cash session %s not found", id)
	}
	resp := sessionToResponse(session)
	sums, err := s.repos.Sessions.SumMovementsByMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(sums) > 0 {
		resp.ByMethod = sums
	}
	return resp, nil
}

func (s *cashSessionService) History(ctx context.Context, actor Actor, branchID string, page, limit int) (*dto.CashSessionListResponse, error) {
	f := repository.NewFilter()
	if branchID != "" || actor.BranchID != uuid.Nil {
		bid, err := branchFor(actor, branchID)
		if err != nil {
			return nil, err
		}
		f.Eq("branch_id", bid)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	sessions, total, err := s.repos.Sessions.List(ctx, f, repository.Page{Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := &dto.CashSessionListResponse{
		Data:  make([]dto.CashSessionResponse, 0, len(sessions)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for i := range sessions {
		out.Data = append(out.Data, *sessionToResponse(&sessions[i]))
	}
	return out, nil
}
