package dto

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type STKPushRequest struct {
	JobID       string          `json:"job_id"       validate:"required,uuid"`
	PhoneNumber string          `json:"phone_number" validate:"required,min=9,max=16"`
	Amount      decimal.Decimal `json:"amount"       validate:"required,gt=0"`
}

type STKPushResponse struct {
	PaymentID         string          `json:"payment_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	MerchantRequestID string          `json:"merchant_request_id"`
	CustomerMessage   string          `json:"customer_message"`
	Amount            decimal.Decimal `json:"amount"`
	PhoneNumber       string          `json:"phone_number"`
	Status            string          `json:"status"`
}

type MpesaStatusResponse struct {
	CheckoutRequestID string          `json:"checkout_request_id"`
	PaymentID         string          `json:"payment_id"`
	JobID             string          `json:"job_id"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	MpesaReceipt      *string         `json:"mpesa_receipt"`
	PhoneNumber       *string         `json:"phone_number"`
	Notes             string          `json:"notes"`
}

// ─── Gateway callback ───────────────────────────────────────────────────────
// Shape posted by the gateway to the callback URL. Metadata items carry no
// fixed schema: values are kept raw and looked up by name.

type MpesaCallbackEnvelope struct {
	Body struct {
		STKCallback MpesaSTKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type MpesaSTKCallback struct {
	MerchantRequestID string                 `json:"MerchantRequestID"`
	CheckoutRequestID string                 `json:"CheckoutRequestID"`
	ResultCode        int                    `json:"ResultCode"`
	ResultDesc        string                 `json:"ResultDesc"`
	CallbackMetadata  *MpesaCallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type MpesaCallbackMetadata struct {
	Item []MpesaMetadataItem `json:"Item"`
}

type MpesaMetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Lookup returns the raw value of the named item, or nil.
func (m *MpesaCallbackMetadata) Lookup(name string) json.RawMessage {
	if m == nil {
		return nil
	}
	for _, it := range m.Item {
		if it.Name == name {
			return it.Value
		}
	}
	return nil
}

// MpesaAck is the fixed acknowledgement returned to the gateway.
type MpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
