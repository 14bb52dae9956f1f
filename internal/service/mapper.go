package service

import (
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/shopspring/decimal"
)

func jobToResponse(j *model.Job) *dto.JobResponse {
	paid := money(model.NetPaid(j.Payments))
	balance := j.FinalAmount.Sub(paid)
	if balance.Sign() < 0 {
		balance = decimal.Zero
	}
	resp := &dto.JobResponse{
		ID:                  j.ID.String(),
		JobNumber:           j.JobNumber,
		Status:              j.Status,
		VehicleID:           j.VehicleID.String(),
		CustomerID:          idPtr(j.CustomerID),
		BranchID:            j.BranchID.String(),
		BayID:               idPtr(j.BayID),
		AssignedStaffID:     idPtr(j.AssignedStaffID),
		TotalAmount:         j.TotalAmount,
		DiscountAmount:      j.DiscountAmount,
		FinalAmount:         j.FinalAmount,
		PaidAmount:          paid,
		Balance:             balance,
		IsRewash:            j.IsRewash,
		OriginalJobID:       idPtr(j.OriginalJobID),
		Notes:               j.Notes,
		Services:            make([]dto.JobServiceResponse, 0, len(j.Services)),
		EstimatedCompletion: fmtTimePtr(j.EstimatedCompletion),
		ActualCompletion:    fmtTimePtr(j.ActualCompletion),
		CreatedAt:           fmtTime(j.CreatedAt),
	}
	for _, l := range j.Services {
		resp.Services = append(resp.Services, dto.JobServiceResponse{
			ID:          l.ID.String(),
			ServiceID:   l.ServiceID.String(),
			ServiceName: l.ServiceName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			Discount:    l.Discount,
			LineTotal:   l.LineTotal,
			Status:      l.Status,
			StartedAt:   fmtTimePtr(l.StartedAt),
			CompletedAt: fmtTimePtr(l.CompletedAt),
		})
	}
	return resp
}

func bayToResponse(b *model.Bay) *dto.BayResponse {
	return &dto.BayResponse{
		ID:           b.ID.String(),
		BranchID:     b.BranchID.String(),
		BayNumber:    b.BayNumber,
		BayType:      b.BayType,
		Status:       b.Status,
		CurrentJobID: idPtr(b.CurrentJobID),
		Notes:        b.Notes,
	}
}

func paymentToResponse(p *model.Payment, jobStatus string) *dto.PaymentResponse {
	return &dto.PaymentResponse{
		ID:              p.ID.String(),
		JobID:           p.JobID.String(),
		Amount:          p.Amount,
		Method:          p.Method,
		Status:          p.Status,
		ReferenceNo:     p.ReferenceNo,
		MpesaReceipt:    p.MpesaReceipt,
		PhoneNumber:     p.PhoneNumber,
		RefundedAmount:  p.RefundedAmount,
		Notes:           p.Notes,
		TransactionDate: fmtTimePtr(p.TransactionDate),
		CreatedAt:       fmtTime(p.CreatedAt),
		JobStatus:       jobStatus,
	}
}

func sessionToResponse(s *model.CashSession) *dto.CashSessionResponse {
	resp := &dto.CashSessionResponse{
		ID:              s.ID.String(),
		BranchID:        s.BranchID.String(),
		OperatorID:      s.OperatorID.String(),
		OpeningBalance:  s.OpeningBalance,
		CashSales:       s.CashSales,
		MobileSales:     s.MobileSales,
		CardSales:       s.CardSales,
		TotalSales:      s.TotalSales,
		ExpensesPaid:    s.ExpensesPaid,
		ExpectedClosing: s.ExpectedClosing,
		ActualClosing:   s.ActualClosing,
		Status:          s.Status,
		Notes:           s.Notes,
		OpenedAt:        fmtTime(s.OpenedAt),
		ClosedAt:        fmtTimePtr(s.ClosedAt),
	}
	if s.Variance != nil {
		v := &dto.VarianceResponse{Amount: *s.Variance}
		v.Percent = variancePercent(*s.Variance, s.ExpectedClosing)
		if s.VarianceClass != nil {
			v.Class = *s.VarianceClass
		}
		resp.Variance = v
	}
	for _, m := range s.Movements {
		resp.Movements = append(resp.Movements, dto.CashMovementResponse{
			ID:          m.ID.String(),
			Type:        m.Type,
			Method:      m.Method,
			Amount:      m.Amount,
			Description: m.Description,
			ReferenceID: idPtr(m.ReferenceID),
			CreatedAt:   fmtTime(m.CreatedAt),
		})
	}
	return resp
}

func expenseToResponse(e *model.Expense) *dto.ExpenseResponse {
	return &dto.ExpenseResponse{
		ID:            e.ID.String(),
		BranchID:      e.BranchID.String(),
		CashSessionID: idPtr(e.CashSessionID),
		Category:      e.Category,
		Amount:        e.Amount,
		PaymentMethod: e.PaymentMethod,
		Description:   e.Description,
		CreatedAt:     fmtTime(e.CreatedAt),
	}
}
