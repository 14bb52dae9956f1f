package infra

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// MpesaConfig configures the Daraja STK-push client.
type MpesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
	// Location is used for the request timestamp. Defaults to UTC.
	Location *time.Location
	Timeout  time.Duration
}

// STKPushInput is one push-payment request.
type STKPushInput struct {
	Amount           int64
	Phone            string
	AccountReference string
	Description      string
}

// STKPushResult is the gateway's synchronous acknowledgement of a push.
type STKPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryResult is the outcome of a status query for one checkout request.
type STKQueryResult struct {
	ResponseCode        string     `json:"ResponseCode"`
	ResponseDescription string     `json:"ResponseDescription"`
	MerchantRequestID   string     `json:"MerchantRequestID"`
	CheckoutRequestID   string     `json:"CheckoutRequestID"`
	ResultCode          FlexString `json:"ResultCode"`
	ResultDesc          string     `json:"ResultDesc"`
}

// Code returns the numeric result code.
func (r *STKQueryResult) Code() (int, error) {
	return strconv.Atoi(string(r.ResultCode))
}

// GatewayError carries the provider's own error description.
type GatewayError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mpesa: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("mpesa: http %d", e.StatusCode)
}

// Pending reports the query answer for a push the payer has not acted on yet.
func (e *GatewayError) Pending() bool {
	return e.Code == "500.001.1001"
}

// IsGatewayFailure reports whether err means the gateway is unhealthy, as
// opposed to rejecting a well-formed request. Only the former trips the breaker.
func IsGatewayFailure(err error) bool {
	if err == nil {
		return false
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode >= 500 && !gwErr.Pending()
	}
	return true
}

// MpesaClient talks to the Daraja API. The OAuth token is cached on the
// instance and refreshed under a single-flight guard.
type MpesaClient struct {
	cfg        MpesaConfig
	httpClient *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	sf        singleflight.Group

	now func() time.Time
}

// tokenSafetyMargin is subtracted from the advertised token lifetime.
const tokenSafetyMargin = 60 * time.Second

func NewMpesaClient(cfg MpesaConfig) *MpesaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MpesaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or close to expiry.
func (c *MpesaClient) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}
	v, err, _ := c.sf.Do("token", func() (any, error) {
		if tok, ok := c.cachedToken(); ok {
			return tok, nil
		}
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *MpesaClient) cachedToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *MpesaClient) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("mpesa: create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var out struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   FlexString `json:"expires_in"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("mpesa: empty access token")
	}
	secs, err := strconv.Atoi(string(out.ExpiresIn))
	if err != nil || secs <= 0 {
		secs = 3599
	}
	ttl := time.Duration(secs)*time.Second - tokenSafetyMargin
	if ttl < 0 {
		ttl = 0
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()
	return out.AccessToken, nil
}

// Password derives the request password and the timestamp it was built with.
func (c *MpesaClient) Password(at time.Time) (password, timestamp string) {
	timestamp = at.In(c.cfg.Location).Format("20060102150405")
	raw := c.cfg.ShortCode + c.cfg.PassKey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

// STKPush submits a push-payment request to the payer's phone.
func (c *MpesaClient) STKPush(ctx context.Context, in STKPushInput) (*STKPushResult, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	password, timestamp := c.Password(c.now())
	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   c.cfg.TransactionType,
		"Amount":            in.Amount,
		"PartyA":            in.Phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       in.Phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  accountReference(in.AccountReference),
		"TransactionDesc":   truncate(in.Description, 13),
	}
	var out STKPushResult
	if err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &out); err != nil {
		return nil, err
	}
	if out.CheckoutRequestID == "" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	return &out, nil
}

// STKQuery asks the gateway for the final state of a push.
func (c *MpesaClient) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResult, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	password, timestamp := c.Password(c.now())
	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	var out STKQueryResult
	if err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MpesaClient) postJSON(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mpesa: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mpesa: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	err = c.do(req, out)

	// A rejected token is dropped so the next call fetches a fresh one.
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		if c.token == token {
			c.token = ""
		}
		c.mu.Unlock()
	}
	return err
}

func (c *MpesaClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mpesa: gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("mpesa: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		gwErr := &GatewayError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, gwErr)
		return gwErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("mpesa: decode response: %w", err)
	}
	return nil
}

// accountReference compacts a job number to Daraja's 12-character limit,
// dropping separators and keeping the tail so the daily sequence survives.
func accountReference(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 12 {
		out = out[len(out)-12:]
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// FlexString accepts a JSON string or number. Daraja is not consistent about
// which one it sends for codes and lifetimes.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(bytes.TrimSpace(b))
	return nil
}
