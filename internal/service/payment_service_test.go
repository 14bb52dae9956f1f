package service

import (
	"sync"
	"testing"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInCustomer checks in a saloon wash linked to a customer by phone.
func (f *fixture) checkInCustomer(reg, phone string, bay *uuid.UUID) *dto.JobResponse {
	f.t.Helper()
	req := dto.CheckInRequest{
		RegistrationNo: reg,
		VehicleType:    "saloon",
		CustomerPhone:  ptr(phone),
		Services:       []dto.JobServiceRequest{{ServiceID: f.wash.ID.String(), Quantity: 1}},
	}
	if bay != nil {
		req.BayID = ptr(bay.String())
	}
	job, err := f.jobSvc.CheckIn(f.ctx, f.actor, req)
	require.NoError(f.t, err)
	require.NotNil(f.t, job.CustomerID)
	return job
}

func (f *fixture) customer(id string) *model.Customer {
	f.t.Helper()
	c, err := f.repos.Customers.FindCustomerByID(f.ctx, nil, uuid.MustParse(id))
	require.NoError(f.t, err)
	return c
}

func TestRecordPayment_SplitCashSettlesJob(t *testing.T) {
	f := newFixture(t)
	bay := f.bays[0]
	job := f.checkInCustomer("KSP 250", "0712000250", &bay.ID)

	first, err := f.pay(job.ID, "100", model.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, first.Status)
	assert.Equal(t, model.JobInQueue, first.JobStatus)

	bal, err := f.paymentSvc.Balance(f.ctx, uuid.MustParse(job.ID))
	require.NoError(t, err)
	assert.True(t, bal.PaidAmount.Equal(dec("100")))
	assert.True(t, bal.Remaining.Equal(dec("150")))

	second, err := f.pay(job.ID, "150", model.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, model.JobPaid, second.JobStatus)

	j := f.job(job.ID)
	assert.Equal(t, model.JobPaid, j.Status)
	assert.Nil(t, j.BayID)
	assert.True(t, model.NetPaid(j.Payments).Equal(dec("250")))

	b := f.bay(bay.ID)
	assert.Equal(t, model.BayAvailable, b.Status)
	assert.Nil(t, b.CurrentJobID)

	c := f.customer(*job.CustomerID)
	assert.Equal(t, 2, c.LoyaltyPoints)
	assert.Equal(t, 1, c.TotalVisits)
	assert.True(t, c.TotalSpent.Equal(dec("250")))

	var txs []model.LoyaltyTransaction
	require.NoError(t, f.db.Where("customer_id = ?", c.ID).Find(&txs).Error)
	require.Len(t, txs, 1)
	assert.Equal(t, model.LoyaltyEarned, txs[0].Type)
	assert.Equal(t, 2, txs[0].Points)
	assert.Equal(t, 2, txs[0].BalanceAfter)
}

func TestRecordPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KRJ 001", nil)

	_, err := f.pay(job.ID, "300", model.MethodCash)
	assert.True(t, apierror.Is(err, apierror.KindExceedsBalance))

	_, err = f.pay(job.ID, "0", model.MethodCash)
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	_, err = f.pay(job.ID, "100", model.MethodMpesa)
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	_, err = f.pay(job.ID, "100", "cheque")
	assert.True(t, apierror.Is(err, apierror.KindValidation))

	_, err = f.pay(uuid.NewString(), "100", model.MethodCash)
	assert.True(t, apierror.Is(err, apierror.KindNotFound))

	_, err = f.pay(job.ID, "250", model.MethodCard)
	require.NoError(t, err)
	_, err = f.pay(job.ID, "1", model.MethodCash)
	assert.True(t, apierror.Is(err, apierror.KindAlreadyPaid))

	cancelled := f.checkIn("KRJ 002", nil)
	f.setStatus(cancelled.ID, model.JobCancelled)
	_, err = f.pay(cancelled.ID, "10", model.MethodCash)
	assert.True(t, apierror.Is(err, apierror.KindConflict))
}

func TestRecordPayment_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KCP 001", nil)

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pay(job.ID, "100", model.MethodCash)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apierror.Is(err, apierror.KindExceedsBalance), err)
	}
	assert.Equal(t, 2, ok)
	assert.True(t, model.NetPaid(f.job(job.ID).Payments).Equal(dec("200")))
}

func TestRecordPayment_UpdatesOpenDrawer(t *testing.T) {
	f := newFixture(t)
	session, err := f.cashSvc.Open(f.ctx, f.actor, dto.OpenSessionRequest{OpeningBalance: dec("1000")})
	require.NoError(t, err)

	job := f.checkIn("KDR 001", nil, f.wash, f.vacuum) // 400
	_, err = f.pay(job.ID, "300", model.MethodCash)
	require.NoError(t, err)
	_, err = f.pay(job.ID, "100", model.MethodCard)
	require.NoError(t, err)

	got, err := f.cashSvc.Get(f.ctx, uuid.MustParse(session.ID))
	require.NoError(t, err)
	assert.True(t, got.CashSales.Equal(dec("300")))
	assert.True(t, got.CardSales.Equal(dec("100")))
	assert.True(t, got.TotalSales.Equal(dec("400")))
	assert.True(t, got.ExpectedClosing.Equal(dec("1300")))
	require.Len(t, got.Movements, 2)
	assert.Equal(t, model.MovementSale, got.Movements[0].Type)
	assert.True(t, got.ByMethod[model.MethodCash].Equal(dec("300")))
}

func TestRefund_FullRefundRevertsPaidJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.cashSvc.Open(f.ctx, f.actor, dto.OpenSessionRequest{OpeningBalance: dec("500")})
	require.NoError(t, err)
	job := f.checkInCustomer("KRF 001", "0712000001", nil)
	p, err := f.pay(job.ID, "250", model.MethodCash)
	require.NoError(t, err)
	require.Equal(t, model.JobPaid, p.JobStatus)

	refunded, err := f.paymentSvc.Refund(f.ctx, f.actor, uuid.MustParse(p.ID), dto.RefundRequest{
		Amount: dec("250"), Reason: "wrong car",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, refunded.Status)
	assert.True(t, refunded.RefundedAmount.Equal(dec("250")))
	assert.Equal(t, model.JobCompleted, refunded.JobStatus)
	assert.Contains(t, refunded.Notes, "wrong car")

	assert.Equal(t, model.JobCompleted, f.job(job.ID).Status)

	c := f.customer(*job.CustomerID)
	assert.True(t, c.TotalSpent.IsZero())
	assert.Equal(t, 2, c.LoyaltyPoints, "earned points are kept")

	current, err := f.cashSvc.Current(f.ctx, f.actor, "")
	require.NoError(t, err)
	assert.True(t, current.CashSales.IsZero())
	assert.True(t, current.ExpectedClosing.Equal(dec("500")))

	_, err = f.paymentSvc.Refund(f.ctx, f.actor, uuid.MustParse(p.ID), dto.RefundRequest{Amount: dec("1"), Reason: "again"})
	assert.True(t, apierror.Is(err, apierror.KindConflict))
}

func TestRefund_Partial(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KRF 002", nil)
	p, err := f.pay(job.ID, "200", model.MethodCard)
	require.NoError(t, err)
	id := uuid.MustParse(p.ID)

	got, err := f.paymentSvc.Refund(f.ctx, f.actor, id, dto.RefundRequest{Amount: dec("50"), Reason: "slow"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartial, got.Status)

	_, err = f.paymentSvc.Refund(f.ctx, f.actor, id, dto.RefundRequest{Amount: dec("151"), Reason: "too much"})
	assert.True(t, apierror.Is(err, apierror.KindExceedsBalance))

	bal, err := f.paymentSvc.Balance(f.ctx, uuid.MustParse(job.ID))
	require.NoError(t, err)
	assert.True(t, bal.PaidAmount.Equal(dec("150")))
	assert.True(t, bal.Remaining.Equal(dec("100")))

	_, err = f.paymentSvc.Refund(f.ctx, f.actor, uuid.New(), dto.RefundRequest{Amount: dec("1"), Reason: "ghost"})
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestRefund_UnsettledJobKeepsSpend(t *testing.T) {
	f := newFixture(t)
	first := f.checkInCustomer("KRF 003", "0712000003", nil)
	_, err := f.pay(first.ID, "250", model.MethodCash)
	require.NoError(t, err)

	second := f.checkInCustomer("KRF 003", "0712000003", nil)
	p, err := f.pay(second.ID, "100", model.MethodCash)
	require.NoError(t, err)
	require.Equal(t, model.JobCheckedIn, p.JobStatus)

	_, err = f.paymentSvc.Refund(f.ctx, f.actor, uuid.MustParse(p.ID), dto.RefundRequest{Amount: dec("100"), Reason: "left early"})
	require.NoError(t, err)

	c := f.customer(*second.CustomerID)
	assert.True(t, c.TotalSpent.Equal(dec("250")), "spend %s", c.TotalSpent)
}

func TestListForJob(t *testing.T) {
	f := newFixture(t)
	job := f.checkIn("KLP 001", nil)
	_, err := f.pay(job.ID, "50", model.MethodCash)
	require.NoError(t, err)
	_, err = f.pay(job.ID, "60", model.MethodBank)
	require.NoError(t, err)

	list, err := f.paymentSvc.ListForJob(f.ctx, uuid.MustParse(job.ID))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Amount.Add(list[1].Amount).Equal(dec("110")))
}

func TestRedeemPoints(t *testing.T) {
	f := newFixture(t)
	job := f.checkInCustomer("KLY 001", "0712000999", nil)
	_, err := f.pay(job.ID, "250", model.MethodCash)
	require.NoError(t, err)
	customerID := uuid.MustParse(*job.CustomerID)

	got, err := f.paymentSvc.RedeemPoints(f.ctx, f.actor, customerID, dto.RedeemPointsRequest{Points: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Points, "redemption is capped at the balance")
	assert.Equal(t, 0, got.LoyaltyPoints)
	assert.Equal(t, 0, f.customer(*job.CustomerID).LoyaltyPoints)

	_, err = f.paymentSvc.RedeemPoints(f.ctx, f.actor, customerID, dto.RedeemPointsRequest{Points: 1})
	assert.True(t, apierror.Is(err, apierror.KindConflict))

	_, err = f.paymentSvc.RedeemPoints(f.ctx, f.actor, uuid.New(), dto.RedeemPointsRequest{Points: 1})
	assert.True(t, apierror.Is(err, apierror.KindNotFound))

	var txs []model.LoyaltyTransaction
	require.NoError(t, f.db.Where("customer_id = ? AND type = ?", customerID, model.LoyaltyRedeemed).Find(&txs).Error)
	require.Len(t, txs, 1)
	assert.Equal(t, -2, txs[0].Points)
}
