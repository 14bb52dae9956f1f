package repository

import (
	"context"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionDelta is a set of signed increments applied atomically to a
// session's running totals.
type SessionDelta struct {
	CashSales    decimal.Decimal
	MobileSales  decimal.Decimal
	CardSales    decimal.Decimal
	TotalSales   decimal.Decimal
	ExpensesPaid decimal.Decimal
}

// ExpectedClosing is the drawer effect of the delta.
func (d SessionDelta) ExpectedClosing() decimal.Decimal {
	return d.CashSales.Sub(d.ExpensesPaid)
}

type CashSessionRepository interface {
	CreateSession(ctx context.Context, tx *gorm.DB, s *model.CashSession) error
	FindOpenByBranch(ctx context.Context, tx *gorm.DB, branchID uuid.UUID) (*model.CashSession, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CashSession, error)
	Close(ctx context.Context, tx *gorm.DB, s *model.CashSession) error
	// ApplyDelta bumps the running totals of an open session in one UPDATE.
	ApplyDelta(ctx context.Context, tx *gorm.DB, id uuid.UUID, d SessionDelta) error
	CreateMovement(ctx context.Context, tx *gorm.DB, m *model.CashMovement) error
	ListMovements(ctx context.Context, sessionID uuid.UUID) ([]model.CashMovement, error)
	SumMovementsByMethod(ctx context.Context, sessionID uuid.UUID) (map[string]decimal.Decimal, error)
	List(ctx context.Context, f *Filter, page Page) ([]model.CashSession, int64, error)
	CreateExpense(ctx context.Context, tx *gorm.DB, e *model.Expense) error
	DB() *gorm.DB
}

type cashSessionRepo struct{ db *gorm.DB }

func NewCashSessionRepository(db *gorm.DB) CashSessionRepository {
	return &cashSessionRepo{db: db}
}

func (r *cashSessionRepo) DB() *gorm.DB { return r.db }

func (r *cashSessionRepo) CreateSession(ctx context.Context, tx *gorm.DB, s *model.CashSession) error {
	return conn(ctx, r.db, tx).Create(s).Error
}

func (r *cashSessionRepo) FindOpenByBranch(ctx context.Context, tx *gorm.DB, branchID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := conn(ctx, r.db, tx).
		Where("branch_id = ? AND status = ?", branchID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashSessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Preload("Movements", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashSessionRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashSessionRepo) Close(ctx context.Context, tx *gorm.DB, s *model.CashSession) error {
	return conn(ctx, r.db, tx).Model(&model.CashSession{}).
		Where("id = ? AND status = ?", s.ID, model.SessionOpen).
		Updates(map[string]any{
			"status":           model.SessionClosed,
			"expected_closing": s.ExpectedClosing,
			"actual_closing":   s.ActualClosing,
			"variance":         s.Variance,
			"variance_class":   s.VarianceClass,
			"notes":            s.Notes,
			"closed_at":        s.ClosedAt,
		}).Error
}

func (r *cashSessionRepo) ApplyDelta(ctx context.Context, tx *gorm.DB, id uuid.UUID, d SessionDelta) error {
	fields := map[string]any{}
	add := func(col string, v decimal.Decimal) {
		if !v.IsZero() {
			fields[col] = gorm.Expr(col+" + ?", v)
		}
	}
	add("cash_sales", d.CashSales)
	add("mobile_sales", d.MobileSales)
	add("card_sales", d.CardSales)
	add("total_sales", d.TotalSales)
	add("expenses_paid", d.ExpensesPaid)
	add("expected_closing", d.ExpectedClosing())
	if len(fields) == 0 {
		return nil
	}
	return conn(ctx, r.db, tx).Model(&model.CashSession{}).
		Where("id = ? AND status = ?", id, model.SessionOpen).
		Updates(fields).Error
}

func (r *cashSessionRepo) CreateMovement(ctx context.Context, tx *gorm.DB, m *model.CashMovement) error {
	return conn(ctx, r.db, tx).Create(m).Error
}

func (r *cashSessionRepo) ListMovements(ctx context.Context, sessionID uuid.UUID) ([]model.CashMovement, error) {
	var movs []model.CashMovement
	err := r.db.WithContext(ctx).Where("cash_session_id = ?", sessionID).Order("created_at ASC").Find(&movs).Error
	return movs, err
}

// SumMovementsByMethod totals the signed movements per payment method. Summed
// in Go so the result stays exact on every backend.
func (r *cashSessionRepo) SumMovementsByMethod(ctx context.Context, sessionID uuid.UUID) (map[string]decimal.Decimal, error) {
	movs, err := r.ListMovements(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]decimal.Decimal)
	for _, m := range movs {
		sums[m.Method] = sums[m.Method].Add(m.Amount)
	}
	return sums, nil
}

func (r *cashSessionRepo) List(ctx context.Context, f *Filter, page Page) ([]model.CashSession, int64, error) {
	var sessions []model.CashSession
	var total int64

	q := f.Apply(r.db.WithContext(ctx).Model(&model.CashSession{}))
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("opened_at DESC").
		Offset(page.offset()).Limit(page.Limit).
		Find(&sessions).Error
	return sessions, total, err
}

func (r *cashSessionRepo) CreateExpense(ctx context.Context, tx *gorm.DB, e *model.Expense) error {
	return conn(ctx, r.db, tx).Create(e).Error
}
