package service

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIn_WithoutBay(t *testing.T) {
	f := newFixture(t)

	job := f.checkIn("kca 123a", nil)

	assert.Equal(t, model.JobCheckedIn, job.Status)
	assert.Nil(t, job.BayID)
	assert.True(t, job.TotalAmount.Equal(dec("250")))
	assert.True(t, job.DiscountAmount.IsZero())
	assert.True(t, job.FinalAmount.Equal(dec("250")))
	require.Len(t, job.Services, 1)
	assert.Equal(t, "Exterior Wash", job.Services[0].ServiceName)
	assert.Equal(t, model.LinePending, job.Services[0].Status)

	day := time.Now().UTC().Format("20060102")
	assert.Equal(t, fmt.Sprintf("JOB-%s-0001", day), job.JobNumber)

	var v model.Vehicle
	require.NoError(t, f.db.Where("registration_no = ?", "KCA123A").First(&v).Error)
	assert.Equal(t, "saloon", v.VehicleType)
}

func TestCheckIn_WithBay(t *testing.T) {
	f := newFixture(t)
	bay := f.bays[0]

	job := f.checkIn("KBZ 900", &bay.ID)

	assert.Equal(t, model.JobInQueue, job.Status)
	require.NotNil(t, job.BayID)
	assert.Equal(t, bay.ID.String(), *job.BayID)

	b := f.bay(bay.ID)
	assert.Equal(t, model.BayOccupied, b.Status)
	require.NotNil(t, b.CurrentJobID)
	assert.Equal(t, job.ID, b.CurrentJobID.String())
}

func TestCheckIn_OccupiedBayFailsWholeCheckIn(t *testing.T) {
	f := newFixture(t)
	bay := f.bays[0]
	f.checkIn("KAA 001A", &bay.ID)

	_, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KAA 002A",
		VehicleType:    "saloon",
		BayID:          ptr(bay.ID.String()),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindBayUnavailable))

	var jobs int64
	f.db.Model(&model.Job{}).Count(&jobs)
	assert.EqualValues(t, 1, jobs)
	var vehicles int64
	f.db.Model(&model.Vehicle{}).Where("registration_no = ?", "KAA002A").Count(&vehicles)
	assert.Zero(t, vehicles, "rolled back vehicle insert")
}

func TestCheckIn_BayFromOtherBranch(t *testing.T) {
	f := newFixture(t)
	_, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KAA 003A",
		VehicleType:    "saloon",
		BayID:          ptr(f.foreignBay.ID.String()),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	assert.True(t, apierror.Is(err, apierror.KindBayUnavailable))
}

func TestCheckIn_PricesByVehicleType(t *testing.T) {
	f := newFixture(t)
	job, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KDA 100B",
		VehicleType:    "SUV",
		Services: []dto.JobServiceRequest{
			{ServiceID: f.wash.ID.String(), Quantity: 1},
			{ServiceID: f.vacuum.ID.String(), Quantity: 2, Discount: dec("50")},
		},
	})
	require.NoError(t, err)
	// 400 override + (150*2 - 50)
	assert.True(t, job.TotalAmount.Equal(dec("650")), job.TotalAmount.String())
	assert.True(t, job.FinalAmount.Equal(dec("650")))
}

func TestCheckIn_Rewash(t *testing.T) {
	f := newFixture(t)
	original := f.checkIn("KCC 555C", nil)

	job, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KCC 555C",
		VehicleType:    "saloon",
		IsRewash:       true,
		OriginalJobID:  ptr(original.ID),
		Services: []dto.JobServiceRequest{
			{ServiceID: f.wash.ID.String()},
			{ServiceID: f.vacuum.ID.String()},
		},
	})
	require.NoError(t, err)
	assert.True(t, job.IsRewash)
	assert.True(t, job.TotalAmount.Equal(dec("400")))
	assert.True(t, job.DiscountAmount.Equal(job.TotalAmount.Mul(dec("0.5"))))
	assert.True(t, job.FinalAmount.Equal(dec("200")))
	require.NotNil(t, job.OriginalJobID)
	assert.Equal(t, original.ID, *job.OriginalJobID)
	assert.Contains(t, job.Notes, "rewash")
}

func TestCheckIn_RewashUnknownOriginal(t *testing.T) {
	f := newFixture(t)
	_, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KCC 556C",
		VehicleType:    "saloon",
		IsRewash:       true,
		OriginalJobID:  ptr(uuid.NewString()),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestCheckIn_Validation(t *testing.T) {
	f := newFixture(t)
	base := func() dto.CheckInRequest {
		return dto.CheckInRequest{
			RegistrationNo: "KAB 111",
			VehicleType:    "saloon",
			Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
		}
	}

	req := base()
	req.VehicleType = "hovercraft"
	_, err := f.jobSvc.CheckIn(f.ctx, f.actor, req)
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	req = base()
	req.Services = nil
	_, err = f.jobSvc.CheckIn(f.ctx, f.actor, req)
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	req = base()
	req.CustomerPhone = ptr("12345")
	_, err = f.jobSvc.CheckIn(f.ctx, f.actor, req)
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	req = base()
	req.Services[0].Discount = dec("300")
	_, err = f.jobSvc.CheckIn(f.ctx, f.actor, req)
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	req = base()
	req.Services[0].ServiceID = uuid.NewString()
	_, err = f.jobSvc.CheckIn(f.ctx, f.actor, req)
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestCheckIn_CustomerLinkIsFirstWriteWins(t *testing.T) {
	f := newFixture(t)
	first, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KDG 777G",
		VehicleType:    "saloon",
		CustomerPhone:  ptr("0712345678"),
		CustomerName:   ptr("Wanjiku"),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	require.NoError(t, err)
	require.NotNil(t, first.CustomerID)

	second, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "kdg777g",
		VehicleType:    "saloon",
		CustomerPhone:  ptr("0722000111"),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	require.NoError(t, err)
	assert.Equal(t, first.VehicleID, second.VehicleID)
	require.NotNil(t, second.CustomerID)
	assert.NotEqual(t, *first.CustomerID, *second.CustomerID, "job goes to the phone given")

	var v model.Vehicle
	require.NoError(t, f.db.Where("id = ?", first.VehicleID).First(&v).Error)
	require.NotNil(t, v.CustomerID)
	assert.Equal(t, *first.CustomerID, v.CustomerID.String(), "vehicle owner not overwritten")

	var c model.Customer
	require.NoError(t, f.db.Where("phone = ?", "254712345678").First(&c).Error)
	assert.Equal(t, "Wanjiku", c.Name)
}

func TestCheckIn_ConcurrentJobNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	const n = 8

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
				RegistrationNo: fmt.Sprintf("KCN %03d", i),
				VehicleType:    "saloon",
				Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
			})
			if assert.NoError(t, err) {
				numbers <- job.JobNumber
			}
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

func TestUpdateStatus_ForwardWithSideEffects(t *testing.T) {
	f := newFixture(t)
	bay := f.bays[0]
	job := f.checkIn("KAW 001", &bay.ID)

	f.setStatus(job.ID, model.JobWashing)
	j := f.job(job.ID)
	require.Len(t, j.Services, 1)
	assert.Equal(t, model.LineInProgress, j.Services[0].Status)
	assert.NotNil(t, j.Services[0].StartedAt)

	f.setStatus(job.ID, model.JobCompleted)
	j = f.job(job.ID)
	assert.Equal(t, model.JobCompleted, j.Status)
	assert.Equal(t, model.LineCompleted, j.Services[0].Status)
	assert.NotNil(t, j.Services[0].CompletedAt)
	assert.NotNil(t, j.ActualCompletion)
	assert.Nil(t, j.BayID)

	b := f.bay(bay.ID)
	assert.Equal(t, model.BayAvailable, b.Status)
	assert.Nil(t, b.CurrentJobID)
}

func TestUpdateStatus_PaidToWashingIsInvalid(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KPW 001", nil)
	_, err := f.pay(job.ID, "250", model.MethodCash)
	require.NoError(t, err)

	_, err = f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.MustParse(job.ID), dto.UpdateStatusRequest{Status: model.JobWashing})
	assert.True(t, apierror.Is(err, apierror.KindInvalidTransition))
	assert.Equal(t, model.JobPaid, f.job(job.ID).Status)
}

func TestUpdateStatus_BackwardAndNoop(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KBW 001", nil)
	f.setStatus(job.ID, model.JobWashing)

	for _, to := range []string{model.JobInQueue, model.JobWashing, model.JobCheckedIn} {
		_, err := f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.MustParse(job.ID), dto.UpdateStatusRequest{Status: to})
		assert.True(t, apierror.Is(err, apierror.KindInvalidTransition), to)
	}
	assert.Equal(t, model.JobWashing, f.job(job.ID).Status)
}

func TestUpdateStatus_CancelReleasesBayAndNotes(t *testing.T) {
	f := newFixture(t)
	bay := f.bays[1]
	job := f.checkIn("KCX 001", &bay.ID)

	_, err := f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.MustParse(job.ID), dto.UpdateStatusRequest{
		Status: model.JobCancelled, Reason: ptr("customer left"),
	})
	require.NoError(t, err)

	j := f.job(job.ID)
	assert.Equal(t, model.JobCancelled, j.Status)
	assert.Nil(t, j.BayID)
	assert.Contains(t, j.Notes, "cancelled: customer left")
	assert.Equal(t, model.BayAvailable, f.bay(bay.ID).Status)

	_, err = f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.MustParse(job.ID), dto.UpdateStatusRequest{Status: model.JobCancelled})
	assert.True(t, apierror.Is(err, apierror.KindInvalidTransition))
}

func TestUpdateStatus_ManualPaidNeedsFullBalance(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KMP 001", nil)

	_, err := f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.MustParse(job.ID), dto.UpdateStatusRequest{Status: model.JobPaid})
	assert.True(t, apierror.Is(err, apierror.KindConflict))
	assert.Equal(t, model.JobCheckedIn, f.job(job.ID).Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.New(), dto.UpdateStatusRequest{Status: model.JobWashing})
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestAddService_RecomputesTotals(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KAS 001", nil)

	got, err := f.jobSvc.AddService(f.ctx, f.actor, uuid.MustParse(job.ID), dto.JobServiceRequest{
		ServiceID: f.vacuum.ID.String(), Quantity: 2,
	})
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("550")))
	assert.True(t, got.FinalAmount.Equal(got.TotalAmount.Sub(got.DiscountAmount)))
	assert.Len(t, got.Services, 2)
	assert.Contains(t, got.Notes, "service added: Interior Vacuum x2")
}

func TestAddService_LineFollowsJobStatus(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KAS 004", nil)
	f.setStatus(job.ID, model.JobCompleted)

	got, err := f.jobSvc.AddService(f.ctx, f.actor, uuid.MustParse(job.ID), dto.JobServiceRequest{ServiceID: f.vacuum.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	require.Len(t, got.Services, 2)
	for _, line := range got.Services {
		assert.Equal(t, model.LineCompleted, line.Status, line.ServiceName)
		assert.NotNil(t, line.StartedAt, line.ServiceName)
		assert.NotNil(t, line.CompletedAt, line.ServiceName)
	}

	p, err := f.pay(job.ID, "400", model.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, model.JobPaid, p.JobStatus)

	washing := f.checkIn("KAS 005", nil)
	f.setStatus(washing.ID, model.JobWashing)
	got, err = f.jobSvc.AddService(f.ctx, f.actor, uuid.MustParse(washing.ID), dto.JobServiceRequest{ServiceID: f.vacuum.ID.String()})
	require.NoError(t, err)
	for _, line := range got.Services {
		assert.Equal(t, model.LineInProgress, line.Status, line.ServiceName)
		assert.Nil(t, line.CompletedAt, line.ServiceName)
	}
}

func TestAddService_UsesLatestVehicleType(t *testing.T) {
	f := newFixture(t)
	f.checkIn("KVT 100", nil)

	suv, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KVT 100",
		VehicleType:    "suv",
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	require.NoError(t, err)
	assert.True(t, suv.TotalAmount.Equal(dec("400")))

	got, err := f.jobSvc.AddService(f.ctx, f.actor, uuid.MustParse(suv.ID), dto.JobServiceRequest{ServiceID: f.wash.ID.String()})
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("800")), "total %s", got.TotalAmount)

	var v model.Vehicle
	require.NoError(t, f.db.Where("id = ?", suv.VehicleID).First(&v).Error)
	assert.Equal(t, "suv", v.VehicleType)
}

func TestAddService_RejectedOncePaidOrCancelled(t *testing.T) {
	f := newFixture(t)
	paid := f.checkIn("KAS 002", nil)
	_, err := f.pay(paid.ID, "250", model.MethodCard)
	require.NoError(t, err)

	_, err = f.jobSvc.AddService(f.ctx, f.actor, uuid.MustParse(paid.ID), dto.JobServiceRequest{ServiceID: f.vacuum.ID.String()})
	assert.True(t, apierror.Is(err, apierror.KindConflict))

	cancelled := f.checkIn("KAS 003", nil)
	f.setStatus(cancelled.ID, model.JobCancelled)
	_, err = f.jobSvc.ApplyDiscount(f.ctx, f.actor, uuid.MustParse(cancelled.ID), dto.DiscountRequest{
		Type: "fixed", Value: dec("10"), Reason: "loyal",
	})
	assert.True(t, apierror.Is(err, apierror.KindConflict))
}

func TestApplyDiscount(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KDS 001", nil, f.wash, f.vacuum) // 400
	id := uuid.MustParse(job.ID)

	got, err := f.jobSvc.ApplyDiscount(f.ctx, f.actor, id, dto.DiscountRequest{Type: "percentage", Value: dec("10"), Reason: "promo"})
	require.NoError(t, err)
	assert.True(t, got.DiscountAmount.Equal(dec("40")))
	assert.True(t, got.FinalAmount.Equal(dec("360")))
	assert.Contains(t, got.Notes, "promo")

	got, err = f.jobSvc.ApplyDiscount(f.ctx, f.actor, id, dto.DiscountRequest{Type: "fixed", Value: dec("1000"), Reason: "goodwill"})
	require.NoError(t, err)
	assert.True(t, got.DiscountAmount.Equal(dec("400")), "capped at total")
	assert.True(t, got.FinalAmount.IsZero())

	_, err = f.jobSvc.ApplyDiscount(f.ctx, f.actor, id, dto.DiscountRequest{Type: "percentage", Value: dec("120"), Reason: "typo"})
	assert.True(t, apierror.Is(err, apierror.KindValidation))
}

func TestApplyDiscount_StacksOnRewash(t *testing.T) {
	f := newFixture(t)
	original := f.checkIn("KDS 003", nil)
	rewash, err := f.jobSvc.CheckIn(f.ctx, f.actor, dto.CheckInRequest{
		RegistrationNo: "KDS 003",
		VehicleType:    "saloon",
		IsRewash:       true,
		OriginalJobID:  ptr(original.ID),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String()}},
	})
	require.NoError(t, err)
	require.True(t, rewash.DiscountAmount.Equal(dec("125")))

	got, err := f.jobSvc.ApplyDiscount(f.ctx, f.actor, uuid.MustParse(rewash.ID), dto.DiscountRequest{Type: "fixed", Value: dec("10"), Reason: "regular"})
	require.NoError(t, err)
	assert.True(t, got.DiscountAmount.Equal(dec("135")), "discount %s", got.DiscountAmount)
	assert.True(t, got.FinalAmount.Equal(dec("115")), "final %s", got.FinalAmount)
}

func TestApplyDiscount_CannotGoBelowPaid(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KDS 002", nil, f.wash, f.vacuum) // 400
	_, err := f.pay(job.ID, "300", model.MethodCash)
	require.NoError(t, err)
	id := uuid.MustParse(job.ID)

	_, err = f.jobSvc.ApplyDiscount(f.ctx, f.actor, id, dto.DiscountRequest{Type: "fixed", Value: dec("150"), Reason: "too much"})
	assert.True(t, apierror.Is(err, apierror.KindConflict))

	got, err := f.jobSvc.ApplyDiscount(f.ctx, f.actor, id, dto.DiscountRequest{Type: "fixed", Value: dec("100"), Reason: "exact"})
	require.NoError(t, err)
	assert.Equal(t, model.JobPaid, got.Status, "discount down to the paid amount settles the job")
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	a := f.checkIn("KLA 100", &f.bays[0].ID)
	f.checkIn("KLB 200", nil)
	c := f.checkIn("KLC 300", nil)
	f.setStatus(c.ID, model.JobCancelled)

	all, err := f.jobSvc.List(f.ctx, dto.JobFilter{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)

	active, err := f.jobSvc.List(f.ctx, dto.JobFilter{Status: "active", Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 2, active.Total)

	byBay, err := f.jobSvc.List(f.ctx, dto.JobFilter{BayID: f.bays[0].ID.String(), Page: 1, Limit: 50})
	require.NoError(t, err)
	require.Len(t, byBay.Data, 1)
	assert.Equal(t, a.ID, byBay.Data[0].ID)

	byReg, err := f.jobSvc.List(f.ctx, dto.JobFilter{Search: "klb", Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 1, byReg.Total)

	byNumber, err := f.jobSvc.List(f.ctx, dto.JobFilter{Search: a.JobNumber, Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 1, byNumber.Total)

	wildcard, err := f.jobSvc.List(f.ctx, dto.JobFilter{Search: "%", Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 0, wildcard.Total, "LIKE wildcards are escaped")

	paged, err := f.jobSvc.List(f.ctx, dto.JobFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paged.Data, 1)
	assert.EqualValues(t, 3, paged.Total)
}

func TestGetByNumber(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KGN 001", nil)

	got, err := f.jobSvc.GetByNumber(f.ctx, strings.ToLower(job.JobNumber))
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = f.jobSvc.GetByNumber(f.ctx, "JOB-19990101-0001")
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestAssignStaff(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KST 001", nil)
	staff := uuid.New()

	got, err := f.jobSvc.AssignStaff(f.ctx, f.actor, uuid.MustParse(job.ID), dto.AssignStaffRequest{StaffID: staff.String()})
	require.NoError(t, err)
	require.NotNil(t, got.AssignedStaffID)
	assert.Equal(t, staff.String(), *got.AssignedStaffID)
}
