package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/metrics"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Actor is the authenticated operator behind a command. BranchID scopes
// defaults such as the branch of a new job or drawer session.
type Actor struct {
	UserID   uuid.UUID
	BranchID uuid.UUID
	Role     string
}

// Repos bundles the repositories shared by the engine's services.
type Repos struct {
	Jobs      repository.JobRepository
	Bays      repository.BayRepository
	Payments  repository.PaymentRepository
	Sessions  repository.CashSessionRepository
	Customers repository.CustomerRepository
	Catalog   repository.CatalogRepository
	Activity  repository.ActivityRepository
}

// NewRepos wires every repository onto one database handle.
func NewRepos(db *gorm.DB) Repos {
	return Repos{
		Jobs:      repository.NewJobRepository(db),
		Bays:      repository.NewBayRepository(db),
		Payments:  repository.NewPaymentRepository(db),
		Sessions:  repository.NewCashSessionRepository(db),
		Customers: repository.NewCustomerRepository(db),
		Catalog:   repository.NewCatalogRepository(db),
		Activity:  repository.NewActivityRepository(db),
	}
}

// Options carries the business settings taken from config.
type Options struct {
	JobNumberPrefix string
	// LoyaltyRate is points per full 100 of final amount
	LoyaltyRate int
	// Location decides the calendar day of job numbers and gateway timestamps
	Location *time.Location
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.JobNumberPrefix == "" {
		o.JobNumberPrefix = "JOB"
	}
	if o.LoyaltyRate < 0 {
		o.LoyaltyRate = 0
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func newSettler(r Repos, o Options) *settler {
	return &settler{
		jobs:        r.Jobs,
		payments:    r.Payments,
		bays:        r.Bays,
		customers:   r.Customers,
		sessions:    r.Sessions,
		loyaltyRate: o.LoyaltyRate,
		metrics:     o.Metrics,
		now:         o.Now,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// notFound converts gorm's not-found into the domain kind and passes other
// errors through.
func notFound(err error, format string, args ...any) error {
	if repository.IsNotFound(err) {
		return apierror.NotFound(format, args...)
	}
	return err
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apierror.Validation("%s is not a valid id", field)
	}
	return id, nil
}

func parseOptionalID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := parseID(*raw, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// branchFor picks the explicit branch or falls back to the actor's.
func branchFor(actor Actor, raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) != "" {
		return parseID(raw, "branch_id")
	}
	if actor.BranchID == uuid.Nil {
		return uuid.Nil, apierror.Validation("branch_id is required")
	}
	return actor.BranchID, nil
}

func money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// appendNote adds a timestamped line to an append-only notes field.
func appendNote(existing, note string, at time.Time) string {
	line := fmt.Sprintf("[%s] %s", at.Format("2006-01-02 15:04"), note)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

func fmtTime(t time.Time) string { return t.Format(time.RFC3339) }

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func idPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// ── Activity log ─────────────────────────────────────────────────────────────

// auditor writes the operator trail. Failures are logged and swallowed.
type auditor struct {
	repo repository.ActivityRepository
}

func (a auditor) record(ctx context.Context, actor Actor, action, entityType string, entityID uuid.UUID, detail string) {
	if a.repo == nil {
		return
	}
	entry := &model.ActivityLog{
		UserID:     actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}
	if err := a.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).
			Str("action", action).
			Str("entity_id", entityID.String()).
			Msg("activity log write failed")
	}
}
