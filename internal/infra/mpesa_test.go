package infra

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaraja struct {
	tokenCalls atomic.Int32
	lastPush   map[string]any
	mu         sync.Mutex
	queryCode  string
	queryHTTP  int
	queryBody  string
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.tokenCalls.Add(1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.lastPush = body
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`))
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if f.queryHTTP != 0 {
			w.WriteHeader(f.queryHTTP)
			_, _ = w.Write([]byte(f.queryBody))
			return
		}
		_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","ResultCode":"` + f.queryCode + `","ResultDesc":"done"}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDaraja) *MpesaClient {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewMpesaClient(MpesaConfig{
		BaseURL:         srv.URL,
		ConsumerKey:     "key",
		ConsumerSecret:  "secret",
		ShortCode:       "174379",
		PassKey:         "pass",
		CallbackURL:     "https://example.test/v1/mpesa/callback",
		TransactionType: "CustomerPayBillOnline",
	})
}

func TestMpesaClient_TokenCachedAndSingleFlight(t *testing.T) {
	f := &fakeDaraja{}
	c := newTestClient(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := c.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	wg.Wait()
	_, err := c.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestMpesaClient_TokenRefreshedNearExpiry(t *testing.T) {
	f := &fakeDaraja{}
	c := newTestClient(t, f)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Token(context.Background())
	require.NoError(t, err)

	// 3599s lifetime minus the 60s margin.
	now = now.Add(3540 * time.Second)
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestMpesaClient_STKPushPayload(t *testing.T) {
	f := &fakeDaraja{}
	c := newTestClient(t, f)
	at := time.Date(2019, 12, 19, 10, 21, 15, 0, time.UTC)
	c.now = func() time.Time { return at }

	res, err := c.STKPush(context.Background(), STKPushInput{
		Amount:           150,
		Phone:            "254712345678",
		AccountReference: "JOB-20191219-0001",
		Description:      "Car wash payment",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)

	f.mu.Lock()
	body := f.lastPush
	f.mu.Unlock()
	assert.Equal(t, "20191219102115", body["Timestamp"])
	want := base64.StdEncoding.EncodeToString([]byte("174379" + "pass" + "20191219102115"))
	assert.Equal(t, want, body["Password"])
	assert.Equal(t, "201912190001", body["AccountReference"])
	assert.Equal(t, "Car wash paym", body["TransactionDesc"])
	assert.Equal(t, float64(150), body["Amount"])
	assert.Equal(t, "254712345678", body["PartyA"])
	assert.Equal(t, "174379", body["PartyB"])
}

func TestAccountReference(t *testing.T) {
	cases := map[string]string{
		"JOB-20191219-0001": "201912190001",
		"JOB-20191219-0002": "201912190002",
		"CW-1":              "CW1",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, accountReference(in), in)
	}
	assert.NotEqual(t, accountReference("JOB-20261016-0001"), accountReference("JOB-20261016-0002"))
}

func TestMpesaClient_STKQueryResultCode(t *testing.T) {
	f := &fakeDaraja{queryCode: "1032"}
	c := newTestClient(t, f)

	res, err := c.STKQuery(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	code, err := res.Code()
	require.NoError(t, err)
	assert.Equal(t, 1032, code)
}

func TestMpesaClient_GatewayErrorPreservesDescription(t *testing.T) {
	f := &fakeDaraja{
		queryHTTP: http.StatusInternalServerError,
		queryBody: `{"requestId":"r-1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`,
	}
	c := newTestClient(t, f)

	_, err := c.STKQuery(context.Background(), "ws_CO_1")
	require.Error(t, err)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "The transaction is being processed", gwErr.Message)
	assert.True(t, gwErr.Pending())
	assert.False(t, IsGatewayFailure(err))
}

func TestFlexString_AcceptsNumbersAndStrings(t *testing.T) {
	var out struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":0,"b":"1032"}`), &out))
	assert.Equal(t, FlexString("0"), out.A)
	assert.Equal(t, FlexString("1032"), out.B)
}
