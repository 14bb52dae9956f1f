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
	"gorm.io/gorm"
)

type BayService interface {
	Assign(ctx context.Context, actor Actor, jobID, bayID uuid.UUID) (*dto.BayResponse, error)
	Release(ctx context.Context, actor Actor, bayID uuid.UUID) (*dto.BayResponse, error)
	Create(ctx context.Context, actor Actor, req dto.CreateBayRequest) (*dto.BayResponse, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req dto.UpdateBayRequest) (*dto.BayResponse, error)
	Deactivate(ctx context.Context, actor Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*dto.BayResponse, error)
	List(ctx context.Context, actor Actor, filter dto.BayFilter) ([]dto.BayResponse, error)
}

type bayService struct {
	repos Repos
	audit auditor
	opts  Options
}

func NewBayService(repos Repos, opts Options) BayService {
	return &bayService{repos: repos, audit: auditor{repo: repos.Activity}, opts: opts.withDefaults()}
}

// ── Assign ───────────────────────────────────────────────────────────────────
// The claim is a conditional UPDATE on status='available' and the job's
// branch; losing a race shows up as zero rows affected.

func (s *bayService) Assign(ctx context.Context, actor Actor, jobID, bayID uuid.UUID) (*dto.BayResponse, error) {
	var previous *uuid.UUID
	txErr := runTx(ctx, s.repos.Jobs.DB(), func(tx *gorm.DB) error {
		job, err := s.repos.Jobs.LockByID(ctx, tx, jobID)
		if err != nil {
			return notFound(err, "job %s not found", jobID)
		}
		if !job.IsActive() {
			return apierror.Conflict("job %s is %s and cannot hold a bay", job.JobNumber, job.Status)
		}
		if job.BayID != nil && *job.BayID == bayID {
			return nil
		}
		previous = job.BayID
		if previous != nil {
			if err := s.repos.Bays.Release(ctx, tx, *previous); err != nil {
				return err
			}
		}

		ok, err := s.repos.Bays.Occupy(ctx, tx, bayID, job.BranchID, job.ID)
		if repository.IsUniqueViolation(err) {
			s.opts.Metrics.BayConflict()
			return apierror.BayUnavailable("bay %s is not available", bayID)
		}
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.repos.Bays.FindByID(ctx, tx, bayID); err != nil {
				return notFound(err, "bay %s not found", bayID)
			}
			s.opts.Metrics.BayConflict()
			return apierror.BayUnavailable("bay %s is not available", bayID)
		}

		fields := map[string]any{"bay_id": bayID}
		if job.Status == model.JobCheckedIn {
			fields["status"] = model.JobInQueue
			s.opts.Metrics.JobTransition(model.JobInQueue)
		}
		if err := s.repos.Jobs.Update(ctx, tx, job.ID, fields); err != nil {
			if repository.IsUniqueViolation(err) {
				return apierror.BayUnavailable("bay %s is not available", bayID)
			}
			return err
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.record(ctx, actor, "bay.assign", "job", jobID, bayID.String())
	ev := log.Info().Str("job_id", jobID.String()).Str("bay_id", bayID.String())
	if previous != nil {
		ev = ev.Str("previous_bay_id", previous.String())
	}
	ev.Msg("bay assigned")
	return s.Get(ctx, bayID)
}

// ── Release ──────────────────────────────────────────────────────────────────
// Idempotent: releasing a free bay is a no-op.

func (s *bayService) Release(ctx context.Context, actor Actor, bayID uuid.UUID) (*dto.BayResponse, error) {
	txErr := runTx(ctx, s.repos.Bays.DB(), func(tx *gorm.DB) error {
		bay, err := s.repos.Bays.FindByID(ctx, tx, bayID)
		if err != nil {
			return notFound(err, "bay %s not found", bayID)
		}
		if job, err := s.repos.Jobs.FindActiveByBay(ctx, tx, bay.ID); err == nil {
			if err := s.repos.Jobs.ClearBay(ctx, tx, job.ID); err != nil {
				return err
			}
		} else if !repository.IsNotFound(err) {
			return err
		}
		return s.repos.Bays.Release(ctx, tx, bay.ID)
	})
	if txErr != nil {
		return nil, txErr
	}
	s.audit.record(ctx, actor, "bay.release", "bay", bayID, "")
	return s.Get(ctx, bayID)
}

// ── Master data ──────────────────────────────────────────────────────────────

func (s *bayService) Create(ctx context.Context, actor Actor, req dto.CreateBayRequest) (*dto.BayResponse, error) {
	branchID, err := branchFor(actor, req.BranchID)
	if err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.BayNumber)
	if number == "" {
		return nil, apierror.Validation("bay_number is required")
	}
	bayType := strings.TrimSpace(req.BayType)
	if bayType == "" {
		bayType = "standard"
	}
	bay := &model.Bay{
		BranchID:  branchID,
		BayNumber: number,
		BayType:   bayType,
		Status:    model.BayAvailable,
		Notes:     req.Notes,
	}
	if err := s.repos.Bays.Create(ctx, bay); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apierror.Conflict("bay %s already exists in this branch", number)
		}
		return nil, err
	}
	s.audit.record(ctx, actor, "bay.create", "bay", bay.ID, number)
	return bayToResponse(bay), nil
}

func (s *bayService) Update(ctx context.Context, actor Actor, id uuid.UUID, req dto.UpdateBayRequest) (*dto.BayResponse, error) {
	bay, err := s.repos.Bays.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, "bay %s not found", id)
	}

	fields := map[string]any{}
	if req.BayNumber != nil {
		n := strings.TrimSpace(*req.BayNumber)
		if n == "" {
			return nil, apierror.Validation("bay_number cannot be empty")
		}
		fields["bay_number"] = n
	}
	if req.BayType != nil {
		fields["bay_type"] = strings.TrimSpace(*req.BayType)
	}
	if req.Notes != nil {
		fields["notes"] = *req.Notes
	}
	if req.Status != nil {
		switch *req.Status {
		case model.BayAvailable, model.BayMaintenance, model.BayReserved:
		default:
			return nil, apierror.Validation("status %q cannot be set by hand", *req.Status)
		}
		if bay.Status == model.BayOccupied {
			return nil, apierror.Conflict("bay %s is occupied", bay.BayNumber)
		}
		fields["status"] = *req.Status
	}
	if len(fields) == 0 {
		return bayToResponse(bay), nil
	}

	if err := s.repos.Bays.Update(ctx, id, fields); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apierror.Conflict("bay number already exists in this branch")
		}
		return nil, err
	}
	s.audit.record(ctx, actor, "bay.update", "bay", id, "")
	return s.Get(ctx, id)
}

// Deactivate is the soft delete. Refused while a job holds the bay.
func (s *bayService) Deactivate(ctx context.Context, actor Actor, id uuid.UUID) error {
	ok, err := s.repos.Bays.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		bay, err := s.repos.Bays.FindByID(ctx, nil, id)
		if err != nil {
			return notFound(err, "bay %s not found", id)
		}
		return apierror.Conflict("bay %s is occupied", bay.BayNumber)
	}
	s.audit.record(ctx, actor, "bay.deactivate", "bay", id, "")
	return nil
}

func (s *bayService) Get(ctx context.Context, id uuid.UUID) (*dto.BayResponse, error) {
	bay, err := s.repos.Bays.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, "bay %s not found", id)
	}
	return bayToResponse(bay), nil
}

func (s *bayService) List(ctx context.Context, actor Actor, filter dto.BayFilter) ([]dto.BayResponse, error) {
	f := repository.NewFilter()
	switch {
	case filter.BranchID != "":
		id, err := parseID(filter.BranchID, "branch_id")
		if err != nil {
			return nil, err
		}
		f.Eq("branch_id", id)
	case actor.BranchID != uuid.Nil:
		f.Eq("branch_id", actor.BranchID)
	}
	if filter.Status != "" {
		f.Eq("status", filter.Status)
	} else if !filter.IncludeInactive {
		f.Neq("status", model.BayInactive)
	}

	bays, err := s.repos.Bays.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BayResponse, 0, len(bays))
	for i := range bays {
		out = append(out, *bayToResponse(&bays[i]))
	}
	return out, nil
}
