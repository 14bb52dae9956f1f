//go:build integration

package router

// End-to-end tests against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/config"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/metrics"
	"github.com/manodhiambo/carwash-pos-sub000/internal/middleware"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

type e2eEnv struct {
	t        *testing.T
	server   *httptest.Server
	db       *gorm.DB
	rdb      *redis.Client
	services Services
	branch   model.Branch
	wash     model.Service
	bay      model.Bay
	tokens   map[string]string
}

func setupE2E(t *testing.T) *e2eEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("carwash_test"),
		tcPostgres.WithUsername("carwash"),
		tcPostgres.WithPassword("carwash"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                 "test",
		JWTSecret:           secret,
		DatabaseURL:         pgURL,
		RedisURL:            rdURL,
		WorkerPoolSize:      1,
		Timezone:            "Africa/Nairobi",
		JobNumberPrefix:     "JOB",
		LoyaltyPointsPer100: 1,
		PriceCacheTTL:       time.Hour,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	for _, m := range infra.Models() {
		require.True(t, db.Migrator().HasTable(m), "%T", m)
	}
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	m := metrics.New()
	breaker := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	services := NewServices(db, rdb, &stubGateway{}, breaker, cfg, m)

	workerCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	pool := worker.NewPool(rdb, m)
	pool.Register(worker.JobTypeMpesaCallback, worker.NewCallbackWorker(services.Mpesa))
	pool.Start(workerCtx, 1)

	engine := New(cfg, Deps{DB: db, Redis: rdb, Breaker: breaker, Metrics: m, Services: services, Queue: worker.NewDispatcher(rdb)})
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	env := &e2eEnv{t: t, server: srv, db: db, rdb: rdb, services: services, tokens: map[string]string{}}
	env.branch = model.Branch{Name: "Westlands", Code: "WST", Active: true}
	require.NoError(t, db.Create(&env.branch).Error)
	env.wash = model.Service{Name: "Exterior Wash", BasePrice: decimal.NewFromInt(250), Status: model.ServiceActive}
	require.NoError(t, db.Create(&env.wash).Error)
	require.NoError(t, db.Create(&model.ServicePricing{ServiceID: env.wash.ID, VehicleType: model.VehicleSUV, Price: decimal.NewFromInt(400)}).Error)
	env.bay = model.Bay{BranchID: env.branch.ID, BayNumber: "B1", BayType: "standard", Status: model.BayAvailable}
	require.NoError(t, db.Create(&env.bay).Error)

	h := &harness{t: t, branch: env.branch}
	for _, role := range []string{middleware.RoleAttendant, middleware.RoleCashier, middleware.RoleManager} {
		env.tokens[role] = h.token(role)
	}
	return env
}

func (e *e2eEnv) do(method, path, role string, body any) (int, []byte) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[role])
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes()
}

func (e *e2eEnv) checkIn(reg, vehicleType string) dto.JobResponse {
	e.t.Helper()
	code, body := e.do(http.MethodPost, "/v1/jobs", middleware.RoleAttendant, map[string]any{
		"registration_no": reg,
		"vehicle_type":    vehicleType,
		"services":        []map[string]any{{"service_id": e.wash.ID.String(), "quantity": 1}},
	})
	require.Equal(e.t, http.StatusCreated, code, string(body))
	var job dto.JobResponse
	require.NoError(e.t, json.Unmarshal(body, &job))
	return job
}

func TestE2E_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	env := setupE2E(t)
	job := env.checkIn("KCA 001A", "saloon")

	var wg sync.WaitGroup
	codes := make(chan int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _ := env.do(http.MethodPost, "/v1/payments", middleware.RoleCashier, map[string]any{
				"job_id": job.ID, "amount": "100", "method": "cash",
			})
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	created := 0
	for c := range codes {
		if c == http.StatusCreated {
			created++
		}
	}
	assert.Equal(t, 2, created)

	var payments []model.Payment
	require.NoError(t, env.db.Where("job_id = ?", job.ID).Find(&payments).Error)
	assert.True(t, model.NetPaid(payments).LessThanOrEqual(decimal.NewFromInt(250)))
}

func TestE2E_ConcurrentBayClaimsHaveOneWinner(t *testing.T) {
	env := setupE2E(t)
	jobs := make([]dto.JobResponse, 4)
	for i := range jobs {
		jobs[i] = env.checkIn(fmt.Sprintf("KCB %03dB", i), "saloon")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for _, j := range jobs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			code, _ := env.do(http.MethodPost, "/v1/jobs/"+id+"/bay", middleware.RoleAttendant, map[string]any{"bay_id": env.bay.ID.String()})
			if code == http.StatusOK {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(j.ID)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)

	var bay model.Bay
	require.NoError(t, env.db.First(&bay, "id = ?", env.bay.ID).Error)
	assert.Equal(t, model.BayOccupied, bay.Status)
	require.NotNil(t, bay.CurrentJobID)
}

func TestE2E_QueuedCallbackIsAppliedByWorker(t *testing.T) {
	env := setupE2E(t)
	job := env.checkIn("KDA 777D", "suv")

	code, body := env.do(http.MethodPost, "/v1/payments/mpesa/stk-push", middleware.RoleCashier, map[string]any{
		"job_id": job.ID, "phone_number": "0712345678", "amount": "400",
	})
	require.Equal(t, http.StatusAccepted, code, string(body))
	var push dto.STKPushResponse
	require.NoError(t, json.Unmarshal(body, &push))

	// Simulate a callback deferred by the handler.
	amount, _ := json.Marshal(400)
	require.NoError(t, worker.NewDispatcher(env.rdb).EnqueueMpesaCallback(context.Background(), dto.MpesaSTKCallback{
		CheckoutRequestID: push.CheckoutRequestID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &dto.MpesaCallbackMetadata{Item: []dto.MpesaMetadataItem{
			{Name: "Amount", Value: amount},
			{Name: "MpesaReceiptNumber", Value: json.RawMessage(`"QKX9ZZZ"`)},
		}},
	}))

	require.Eventually(t, func() bool {
		st, err := env.services.Mpesa.Status(context.Background(), push.CheckoutRequestID)
		return err == nil && st.Status == model.PaymentCompleted
	}, 15*time.Second, 200*time.Millisecond)

	code, body = env.do(http.MethodGet, "/v1/jobs/"+job.ID, middleware.RoleAttendant, nil)
	require.Equal(t, http.StatusOK, code)
	var got dto.JobResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.JobPaid, got.Status)
}

func TestE2E_PriceQuoteIsCached(t *testing.T) {
	env := setupE2E(t)
	ctx := context.Background()

	q, err := env.services.Pricing.Resolve(ctx, env.wash.ID, "suv")
	require.NoError(t, err)
	assert.Equal(t, "override", q.Source)

	// Edit behind the cache: the cached quote survives until invalidated.
	require.NoError(t, env.db.Model(&model.ServicePricing{}).
		Where("service_id = ? AND vehicle_type = ?", env.wash.ID, model.VehicleSUV).
		Update("price", decimal.NewFromInt(450)).Error)
	q, err = env.services.Pricing.Resolve(ctx, env.wash.ID, "suv")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(q.Price))

	require.NoError(t, env.services.Pricing.InvalidatePrice(ctx, env.wash.ID))
	q, err = env.services.Pricing.Resolve(ctx, env.wash.ID, "suv")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(450).Equal(q.Price))

	_, err = env.services.Pricing.Resolve(ctx, uuid.New(), "suv")
	assert.Error(t, err)
}
