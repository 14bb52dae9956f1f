package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var rewashRate = decimal.NewFromFloat(0.5)

type JobService interface {
	CheckIn(ctx context.Context, actor Actor, req dto.CheckInRequest) (*dto.JobResponse, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, req dto.UpdateStatusRequest) (*dto.JobResponse, error)
	AddService(ctx context.Context, actor Actor, id uuid.UUID, req dto.JobServiceRequest) (*dto.JobResponse, error)
	ApplyDiscount(ctx context.Context, actor Actor, id uuid.UUID, req dto.DiscountRequest) (*dto.JobResponse, error)
	AssignStaff(ctx context.Context, actor Actor, id uuid.UUID, req dto.AssignStaffRequest) (*dto.JobResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.JobResponse, error)
	GetByNumber(ctx context.Context, number string) (*dto.JobResponse, error)
	List(ctx context.Context, filter dto.JobFilter) (*dto.JobListResponse, error)
}

type jobService struct {
	repos   Repos
	pricing PricingService
	settle  *settler
	audit   auditor
	opts    Options
}

func NewJobService(repos Repos, pricing PricingService, opts Options) JobService {
	opts = opts.withDefaults()
	return &jobService{
		repos:   repos,
		pricing: pricing,
		settle:  newSettler(repos, opts),
		audit:   auditor{repo: repos.Activity},
		opts:    opts,
	}
}

// NormalizeRegistration upper-cases a plate and strips all whitespace.
func NormalizeRegistration(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
}

type pricedLine struct {
	serviceID uuid.UUID
	name      string
	price     decimal.Decimal
	quantity  int
	discount  decimal.Decimal
	total     decimal.Decimal
}

// priceLine resolves one requested line for a vehicle type. Runs outside any
// transaction since the resolver may hit the cache.
func (s *jobService) priceLine(ctx context.Context, vehicleType string, item dto.JobServiceRequest) (pricedLine, error) {
	sid, err := parseID(item.ServiceID, "service_id")
	if err != nil {
		return pricedLine{}, err
	}
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	q, err := s.pricing.Resolve(ctx, sid, vehicleType)
	if err != nil {
		return pricedLine{}, err
	}
	gross := money(q.Price.Mul(decimal.NewFromInt(int64(qty))))
	disc := money(item.Discount)
	if disc.Sign() < 0 || disc.GreaterThan(gross) {
		return pricedLine{}, apierror.Validation("line discount for %s must be between 0 and %s", q.ServiceName, gross.StringFixed(2))
	}
	return pricedLine{
		serviceID: sid,
		name:      q.ServiceName,
		price:     q.Price,
		quantity:  qty,
		discount:  disc,
		total:     gross.Sub(disc),
	}, nil
}

func (l pricedLine) model(jobID uuid.UUID) model.JobService {
	return model.JobService{
		JobID:       jobID,
		ServiceID:   l.serviceID,
		ServiceName: l.name,
		UnitPrice:   l.price,
		Quantity:    l.quantity,
		Discount:    l.discount,
		LineTotal:   l.total,
		Status:      model.LinePending,
	}
}

// ── CheckIn ──────────────────────────────────────────────────────────────────
//   1. Normalise and validate input, price every line (outside TX)
//   2. BEGIN TX: resolve-or-create vehicle and customer, next job number,
//      insert job + lines, claim the bay
//   3. COMMIT; any failure leaves nothing behind

func (s *jobService) CheckIn(ctx context.Context, actor Actor, req dto.CheckInRequest) (*dto.JobResponse, error) {
	branchID, err := branchFor(actor, req.BranchID)
	if err != nil {
		return nil, err
	}
	vehicleType, err := NormalizeVehicleType(req.VehicleType)
	if err != nil {
		return nil, err
	}
	reg := NormalizeRegistration(req.RegistrationNo)
	if reg == "" {
		return nil, apierror.Validation("registration_no is required")
	}
	var phone string
	if req.CustomerPhone != nil && strings.TrimSpace(*req.CustomerPhone) != "" {
		if phone, err = NormalizePhone(*req.CustomerPhone); err != nil {
			return nil, err
		}
	}
	bayID, err := parseOptionalID(req.BayID, "bay_id")
	if err != nil {
		return nil, err
	}
	if len(req.Services) == 0 {
		return nil, apierror.Validation("at least one service is required")
	}

	lines := make([]pricedLine, 0, len(req.Services))
	total := decimal.Zero
	for _, item := range req.Services {
		l, err := s.priceLine(ctx, vehicleType, item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
		total = total.Add(l.total)
	}

	discount := decimal.Zero
	var originalID *uuid.UUID
	if req.IsRewash {
		discount = money(total.Mul(rewashRate))
		if originalID, err = parseOptionalID(req.OriginalJobID, "original_job_id"); err != nil {
			return nil, err
		}
		if originalID != nil {
			if _, err := s.repos.Jobs.FindByID(ctx, nil, *originalID); err != nil {
				return nil, notFound(err, "original job %s not found", *originalID)
			}
		}
	}

	now := s.opts.Now()
	job := model.Job{
		Status:              model.JobCheckedIn,
		BranchID:            branchID,
		BayID:               bayID,
		TotalAmount:         total,
		DiscountAmount:      discount,
		FinalAmount:         total.Sub(discount),
		IsRewash:            req.IsRewash,
		OriginalJobID:       originalID,
		CreatedBy:           actor.UserID,
		EstimatedCompletion: req.EstimatedCompletion,
	}
	if bayID != nil {
		job.Status = model.JobInQueue
	}
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		job.Notes = appendNote("", strings.TrimSpace(*req.Notes), now)
	}
	if req.IsRewash {
		job.Notes = appendNote(job.Notes, "rewash: 50% discount applied", now)
	}

	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		vehicle, err := s.repos.Customers.FindOrCreateVehicle(ctx, tx, &model.Vehicle{
			RegistrationNo: reg,
			VehicleType:    vehicleType,
			Make:           req.VehicleMake,
			Model:          req.VehicleModel,
			Color:          req.VehicleColor,
		})
		if err != nil {
			return fmt.Errorf("resolve vehicle: %w", err)
		}
		// Later line additions price from the stored class.
		if vehicle.VehicleType != vehicleType {
			if err := s.repos.Customers.SetVehicleType(ctx, tx, vehicle.ID, vehicleType); err != nil {
				return fmt.Errorf("update vehicle type: %w", err)
			}
		}
		job.VehicleID = vehicle.ID
		job.CustomerID = vehicle.CustomerID

		if phone != "" {
			c := &model.Customer{Phone: phone, Status: "active"}
			if req.CustomerName != nil {
				c.Name = strings.TrimSpace(*req.CustomerName)
			}
			customer, err := s.repos.Customers.FindOrCreateCustomer(ctx, tx, c)
			if err != nil {
				return fmt.Errorf("resolve customer: %w", err)
			}
			// First owner wins; an existing link is never overwritten.
			if _, err := s.repos.Customers.LinkVehicle(ctx, tx, vehicle.ID, customer.ID); err != nil {
				return err
			}
			cid := customer.ID
			job.CustomerID = &cid
		}

		day := now.In(s.opts.Location).Format("20060102")
		seq, err := s.repos.Jobs.NextSequence(ctx, tx, day)
		if err != nil {
			return fmt.Errorf("next job number: %w", err)
		}
		job.JobNumber = fmt.Sprintf("%s-%s-%04d", s.opts.JobNumberPrefix, day, seq)

		job.ID = uuid.New()
		for _, l := range lines {
			job.Services = append(job.Services, l.model(job.ID))
		}
		if err := s.repos.Jobs.Create(ctx, tx, &job); err != nil {
			if repository.IsUniqueViolation(err) && bayID != nil {
				return apierror.BayUnavailable("bay %s is not available", *bayID)
			}
			return err
		}

		if bayID != nil {
			if err := s.claimBay(ctx, tx, *bayID, &job); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.opts.Metrics.JobTransition(job.Status)
	s.audit.record(ctx, actor, "job.check_in", "job", job.ID, job.JobNumber)
	log.Info().
		Str("job_id", job.ID.String()).
		Str("job_number", job.JobNumber).
		Str("registration_no", reg).
		Msg("vehicle checked in")
	return s.Get(ctx, job.ID)
}

// claimBay occupies the bay for job or fails with BayUnavailable.
func (s *jobService) claimBay(ctx context.Context, tx *gorm.DB, bayID uuid.UUID, job *model.Job) error {
	ok, err := s.repos.Bays.Occupy(ctx, tx, bayID, job.BranchID, job.ID)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			s.opts.Metrics.BayConflict()
			return apierror.BayUnavailable("bay %s is not available", bayID)
		}
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.repos.Bays.FindByID(ctx, tx, bayID); err != nil {
		return notFound(err, "bay %s not found", bayID)
	}
	s.opts.Metrics.BayConflict()
	return apierror.BayUnavailable("bay %s is not available", bayID)
}

// ── UpdateStatus ─────────────────────────────────────────────────────────────

func (s *jobService) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, req dto.UpdateStatusRequest) (*dto.JobResponse, error) {
	to := req.Status
	if !ValidJobStatus(to) {
		return nil, apierror.Validation("unknown status %q", to)
	}

	var from string
	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		job, err := s.repos.Jobs.LockByID(ctx, tx, id)
		if err != nil {
			return notFound(err, "job %s not found", id)
		}
		from = job.Status
		if !CanTransition(from, to) {
			return apierror.InvalidTransition("cannot move job from %s to %s", from, to)
		}

		if to == model.JobPaid {
			net, err := s.settle.netPaid(ctx, tx, job.ID)
			if err != nil {
				return err
			}
			if net.LessThan(job.FinalAmount) {
				return apierror.Conflict("job has an outstanding balance of %s", job.FinalAmount.Sub(net).StringFixed(2))
			}
			_, err = s.settle.markPaid(ctx, tx, job)
			return err
		}

		now := s.opts.Now()
		fields := map[string]any{"status": to}
		switch to {
		case model.JobWashing, model.JobDetailing:
			if err := s.repos.Jobs.StartPendingServices(ctx, tx, job.ID, now); err != nil {
				return err
			}
		case model.JobCompleted:
			if err := s.repos.Jobs.CompleteServices(ctx, tx, job.ID, now); err != nil {
				return err
			}
			if job.ActualCompletion == nil {
				fields["actual_completion"] = now
			}
		}
		if (to == model.JobCompleted || to == model.JobCancelled) && job.BayID != nil {
			if err := s.repos.Bays.Release(ctx, tx, *job.BayID); err != nil {
				return err
			}
			fields["bay_id"] = nil
		}
		if to == model.JobCancelled {
			reason := "no reason given"
			if req.Reason != nil && strings.TrimSpace(*req.Reason) != "" {
				reason = strings.TrimSpace(*req.Reason)
			}
			fields["notes"] = appendNote(job.Notes, "cancelled: "+reason, now)
		}
		if err := s.repos.Jobs.Update(ctx, tx, job.ID, fields); err != nil {
			return err
		}
		s.opts.Metrics.JobTransition(to)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "job.status", "job", id, from+" -> "+to)
	log.Info().Str("job_id", id.String()).Str("from", from).Str("to", to).Msg("job status changed")
	return s.Get(ctx, id)
}

// ── AddService ───────────────────────────────────────────────────────────────

func (s *jobService) AddService(ctx context.Context, actor Actor, id uuid.UUID, req dto.JobServiceRequest) (*dto.JobResponse, error) {
	current, err := s.repos.Jobs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, "job %s not found", id)
	}
	if err := editable(current); err != nil {
		return nil, err
	}
	vehicle, err := s.repos.Customers.FindVehicleByID(ctx, nil, current.VehicleID)
	if err != nil {
		return nil, notFound(err, "vehicle %s not found", current.VehicleID)
	}
	line, err := s.priceLine(ctx, vehicle.VehicleType, req)
	if err != nil {
		return nil, err
	}

	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		job, err := s.repos.Jobs.LockByID(ctx, tx, id)
		if err != nil {
			return notFound(err, "job %s not found", id)
		}
		if err := editable(job); err != nil {
			return err
		}
		m := line.model(job.ID)
		now := s.opts.Now()
		switch job.Status {
		case model.JobWashing, model.JobDetailing:
			m.Status = model.LineInProgress
			m.StartedAt = &now
		case model.JobCompleted:
			m.Status = model.LineCompleted
			m.StartedAt = &now
			m.CompletedAt = &now
		}
		if err := s.repos.Jobs.CreateService(ctx, tx, &m); err != nil {
			return err
		}
		total := job.TotalAmount.Add(line.total)
		return s.repos.Jobs.Update(ctx, tx, job.ID, map[string]any{
			"total_amount": total,
			"final_amount": total.Sub(job.DiscountAmount),
			"notes":        appendNote(job.Notes, fmt.Sprintf("service added: %s x%d", line.name, line.quantity), s.opts.Now()),
		})
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "job.add_service", "job", id, line.name)
	return s.Get(ctx, id)
}

// ── ApplyDiscount ────────────────────────────────────────────────────────────

func (s *jobService) ApplyDiscount(ctx context.Context, actor Actor, id uuid.UUID, req dto.DiscountRequest) (*dto.JobResponse, error) {
	value := money(req.Value)
	if value.Sign() <= 0 {
		return nil, apierror.Validation("discount value must be positive")
	}
	if req.Type == "percentage" && value.GreaterThan(hundred) {
		return nil, apierror.Validation("percentage discount cannot exceed 100")
	}
	if req.Type != "percentage" && req.Type != "fixed" {
		return nil, apierror.Validation("discount type must be percentage or fixed")
	}

	var applied decimal.Decimal
	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		job, err := s.repos.Jobs.LockByID(ctx, tx, id)
		if err != nil {
			return notFound(err, "job %s not found", id)
		}
		if err := editable(job); err != nil {
			return err
		}

		// Discounts stack on top of any existing one (rewash included),
		// capped at the total.
		applied = value
		if req.Type == "percentage" {
			applied = money(job.TotalAmount.Mul(value).Div(hundred))
		}
		if room := job.TotalAmount.Sub(job.DiscountAmount); applied.GreaterThan(room) {
			applied = room
		}
		discount := job.DiscountAmount.Add(applied)
		final := job.TotalAmount.Sub(discount)

		net, err := s.settle.netPaid(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if final.LessThan(net) {
			return apierror.Conflict("discount would bring the amount due below the %s already paid", net.StringFixed(2))
		}

		note := fmt.Sprintf("discount %s (%s %s): %s", applied.StringFixed(2), req.Type, value.String(), strings.TrimSpace(req.Reason))
		if err := s.repos.Jobs.Update(ctx, tx, job.ID, map[string]any{
			"discount_amount": discount,
			"final_amount":    final,
			"notes":           appendNote(job.Notes, note, s.opts.Now()),
		}); err != nil {
			return err
		}
		job.DiscountAmount = discount
		job.FinalAmount = final

		if net.Sign() > 0 && final.Equal(net) {
			_, err := s.settle.markPaid(ctx, tx, job)
			return err
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "job.discount", "job", id, applied.StringFixed(2))
	return s.Get(ctx, id)
}

// ── AssignStaff ──────────────────────────────────────────────────────────────

func (s *jobService) AssignStaff(ctx context.Context, actor Actor, id uuid.UUID, req dto.AssignStaffRequest) (*dto.JobResponse, error) {
	staffID, err := parseID(req.StaffID, "staff_id")
	if err != nil {
		return nil, err
	}
	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		job, err := s.repos.Jobs.LockByID(ctx, tx, id)
		if err != nil {
			return notFound(err, "job %s not found", id)
		}
		if err := editable(job); err != nil {
			return err
		}
		return s.repos.Jobs.Update(ctx, tx, job.ID, map[string]any{"assigned_staff_id": staffID})
	})
	if txErr != nil {
		return nil, txErr
	}
	s.audit.record(ctx, actor, "job.assign_staff", "job", id, staffID.String())
	return s.Get(ctx, id)
}

// editable rejects edits to settled or cancelled jobs.
func editable(job *model.Job) error {
	switch job.Status {
	case model.JobPaid:
		return apierror.Conflict("job %s is already paid", job.JobNumber)
	case model.JobCancelled:
		return apierror.Conflict("job %s is cancelled", job.JobNumber)
	}
	return nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*dto.JobResponse, error) {
	job, err := s.repos.Jobs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, "job %s not found", id)
	}
	return jobToResponse(job), nil
}

func (s *jobService) GetByNumber(ctx context.Context, number string) (*dto.JobResponse, error) {
	job, err := s.repos.Jobs.FindByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, notFound(err, "job %s not found", number)
	}
	return jobToResponse(job), nil
}

func (s *jobService) List(ctx context.Context, filter dto.JobFilter) (*dto.JobListResponse, error) {
	f, err := s.jobFilter(filter)
	if err != nil {
		return nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	jobs, total, err := s.repos.Jobs.List(ctx, f, repository.Page{Page: filter.Page, Limit: filter.Limit})
	if err != nil {
		return nil, err
	}
	out := &dto.JobListResponse{
		Data:  make([]dto.JobResponse, 0, len(jobs)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range jobs {
		out.Data = append(out.Data, *jobToResponse(&jobs[i]))
	}
	return out, nil
}

// jobFilter turns query parameters into bound predicates.
func (s *jobService) jobFilter(in dto.JobFilter) (*repository.Filter, error) {
	f := repository.NewFilter()
	switch {
	case in.Status == "active":
		actives := make([]any, 0, len(model.ActiveJobStatuses))
		for _, st := range model.ActiveJobStatuses {
			actives = append(actives, st)
		}
		f.In("status", actives...)
	case in.Status != "":
		if !ValidJobStatus(in.Status) {
			return nil, apierror.Validation("unknown status %q", in.Status)
		}
		f.Eq("status", in.Status)
	}
	for _, c := range []struct{ raw, column string }{
		{in.BranchID, "branch_id"},
		{in.BayID, "bay_id"},
		{in.CustomerID, "customer_id"},
	} {
		if c.raw == "" {
			continue
		}
		id, err := parseID(c.raw, c.column)
		if err != nil {
			return nil, err
		}
		f.Eq(c.column, id)
	}
	if in.DateFrom != "" {
		from, err := time.ParseInLocation("2006-01-02", in.DateFrom, s.opts.Location)
		if err != nil {
			return nil, apierror.Validation("date_from must be YYYY-MM-DD")
		}
		f.Gte("created_at", from)
	}
	if in.DateTo != "" {
		to, err := time.ParseInLocation("2006-01-02", in.DateTo, s.opts.Location)
		if err != nil {
			return nil, apierror.Validation("date_to must be YYYY-MM-DD")
		}
		f.Lt("created_at", to.AddDate(0, 0, 1))
	}
	if q := NormalizeRegistration(in.Search); q != "" {
		pattern := repository.LikePrefix(q)
		f.Raw(`(job_number LIKE ? ESCAPE '\' OR vehicle_id IN (SELECT id FROM vehicles WHERE registration_no LIKE ? ESCAPE '\'))`,
			pattern, pattern)
	}
	return f, nil
}
