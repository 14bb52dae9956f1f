package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
// One connection keeps every query on the same in-memory database, so code
// inside a transaction must only use the tx handle.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.RunMigrations(db))
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// ── Fake gateway ─────────────────────────────────────────────────────────────

type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	pushes   []infra.STKPushInput
	pushErr  error
	queries  map[string]*infra.STKQueryResult
	queryErr map[string]error
	queried  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		queries:  map[string]*infra.STKQueryResult{},
		queryErr: map[string]error{},
	}
}

func (g *fakeGateway) STKPush(_ context.Context, in infra.STKPushInput) (*infra.STKPushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	g.seq++
	g.pushes = append(g.pushes, in)
	return &infra.STKPushResult{
		MerchantRequestID: fmt.Sprintf("mr-%d", g.seq),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%04d", g.seq),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *fakeGateway) STKQuery(_ context.Context, id string) (*infra.STKQueryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queried = append(g.queried, id)
	if err, ok := g.queryErr[id]; ok {
		return nil, err
	}
	if r, ok := g.queries[id]; ok {
		return r, nil
	}
	return nil, &infra.GatewayError{StatusCode: 500, Code: "500.001.1001", Message: "The transaction is being processed"}
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	repos   Repos
	opts    Options
	gateway *fakeGateway

	branch      model.Branch
	otherBranch model.Branch
	wash        model.Service // 250 base, 400 for suv
	vacuum      model.Service // 150 base
	bays        []model.Bay   // B1, B2 in branch
	foreignBay  model.Bay     // in otherBranch
	actor       Actor

	jobSvc     JobService
	baySvc     BayService
	paymentSvc PaymentService
	cashSvc    CashSessionService
	mpesaSvc   MpesaService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		repos:   NewRepos(db),
		gateway: newFakeGateway(),
		opts: Options{
			JobNumberPrefix: "JOB",
			LoyaltyRate:     1,
			Location:        time.UTC,
			Now:             func() time.Time { return time.Now().UTC() },
		},
	}

	f.branch = model.Branch{Name: "Westlands", Code: "WST", Active: true}
	f.otherBranch = model.Branch{Name: "Karen", Code: "KRN", Active: true}
	require.NoError(t, db.Create(&f.branch).Error)
	require.NoError(t, db.Create(&f.otherBranch).Error)

	f.wash = model.Service{Name: "Exterior Wash", BasePrice: dec("250"), Status: model.ServiceActive}
	f.vacuum = model.Service{Name: "Interior Vacuum", BasePrice: dec("150"), Status: model.ServiceActive}
	require.NoError(t, db.Create(&f.wash).Error)
	require.NoError(t, db.Create(&f.vacuum).Error)
	require.NoError(t, db.Create(&model.ServicePricing{
		ServiceID: f.wash.ID, VehicleType: model.VehicleSUV, Price: dec("400"),
	}).Error)

	for _, n := range []string{"B1", "B2"} {
		b := model.Bay{BranchID: f.branch.ID, BayNumber: n, BayType: "standard", Status: model.BayAvailable}
		require.NoError(t, db.Create(&b).Error)
		f.bays = append(f.bays, b)
	}
	f.foreignBay = model.Bay{BranchID: f.otherBranch.ID, BayNumber: "B1", BayType: "standard", Status: model.BayAvailable}
	require.NoError(t, db.Create(&f.foreignBay).Error)

	f.actor = Actor{UserID: uuid.New(), BranchID: f.branch.ID, Role: "cashier"}

	pricing := NewPricingService(f.repos.Catalog, nil, time.Hour)
	f.jobSvc = NewJobService(f.repos, pricing, f.opts)
	f.baySvc = NewBayService(f.repos, f.opts)
	f.paymentSvc = NewPaymentService(f.repos, f.opts)
	f.cashSvc = NewCashSessionService(f.repos, f.opts)
	f.mpesaSvc = NewMpesaService(f.repos, f.gateway, nil, f.opts)
	return f
}

// checkIn creates a saloon job with the given service lines.
func (f *fixture) checkIn(reg string, bay *uuid.UUID, services ...model.Service) *dto.JobResponse {
	f.t.Helper()
	if len(services) == 0 {
		services = []model.Service{f.wash}
	}
	req := dto.CheckInRequest{RegistrationNo: reg, VehicleType: "saloon"}
	for _, s := range services {
		req.Services = append(req.Services, dto.JobServiceRequest{ServiceID: s.ID.String(), Quantity: 1})
	}
	if bay != nil {
		req.BayID = ptr(bay.String())
	}
	job, err := f.jobSvc.CheckIn(f.ctx, f.actor, req)
	require.NoError(f.t, err)
	return job
}

func (f *fixture) pay(jobID, amount, method string) (*dto.PaymentResponse, error) {
	return f.paymentSvc.RecordPayment(f.ctx, f.actor, dto.RecordPaymentRequest{
		JobID: jobID, Amount: dec(amount), Method: method,
	})
}

func (f *fixture) job(id string) *model.Job {
	f.t.Helper()
	j, err := f.repos.Jobs.FindByID(f.ctx, nil, uuid.MustParse(id))
	require.NoError(f.t, err)
	return j
}

func (f *fixture) bay(id uuid.UUID) *model.Bay {
	f.t.Helper()
	b, err := f.repos.Bays.FindByID(f.ctx, nil, id)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) setStatus(jobID, status string) {
	f.t.Helper()
	_, err := f.jobSvc.UpdateStatus(f.ctx, f.actor, uuid.MustParse(jobID), dto.UpdateStatusRequest{Status: status})
	require.NoError(f.t, err)
}

// successCallback builds a gateway success result with the usual metadata.
func successCallback(checkoutID string, amount int, receipt string) dto.MpesaSTKCallback {
	return dto.MpesaSTKCallback{
		MerchantRequestID: "mr",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &dto.MpesaCallbackMetadata{Item: []dto.MpesaMetadataItem{
			{Name: "Amount", Value: []byte(fmt.Sprintf("%d", amount))},
			{Name: "MpesaReceiptNumber", Value: []byte(`"` + receipt + `"`)},
			{Name: "TransactionDate", Value: []byte("20240115143022")},
			{Name: "PhoneNumber", Value: []byte("254712345678")},
		}},
	}
}
