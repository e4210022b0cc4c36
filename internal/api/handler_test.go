package api_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/upi-wallet/internal/api"
	"github.com/ayo6706/upi-wallet/internal/auth"
	"github.com/ayo6706/upi-wallet/internal/config"
	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/gateway"
	"github.com/ayo6706/upi-wallet/internal/idempotency"
	"github.com/ayo6706/upi-wallet/internal/observability"
	"github.com/ayo6706/upi-wallet/internal/otp"
	"github.com/ayo6706/upi-wallet/internal/repository/memstore"
	"github.com/ayo6706/upi-wallet/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "upi-wallet-test"
	testJWTAudience = "wallet-api-test"
)

var faceImage = base64.StdEncoding.EncodeToString([]byte("face-bytes"))

type testServer struct {
	handler http.Handler
	store   *memstore.Store
}

func setupAPI(t *testing.T) *testServer {
	t.Helper()
	observability.Init()

	cfg := &config.Config{
		HTTPPort:            "0",
		StoreDriver:         config.StoreDriverMemory,
		JWTSecret:           testJWTSecret,
		JWTIssuer:           testJWTIssuer,
		JWTAudience:         testJWTAudience,
		JWTTTL:              time.Hour,
		PublicRateLimitRPS:  1000,
		AuthRateLimitRPS:    1000,
		IdempotencyTTL:      time.Hour,
		WelcomeBalance:      domain.MustParseMoney("1000.00"),
		HandleDomain:        "upi",
		TransferMaxAttempts: 3,
	}

	store := memstore.New()
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	require.NoError(t, err)
	codes := otp.NewService(otp.NewMemoryStore(), otp.NewLogSender(zap.NewNop()), time.Minute)

	authSvc := service.NewAuthService(store, tokens, codes, gateway.NewMockFaceVerifier(), service.AuthConfig{
		WelcomeBalance: cfg.WelcomeBalance,
		HandleDomain:   cfg.HandleDomain,
	})
	accountSvc := service.NewAccountService(store)
	transferSvc := service.NewTransferService(store, service.DefaultTransferConfig())
	idemStore := idempotency.NewStore(nil, store.Queries(), cfg.IdempotencyTTL)

	router := api.NewRouter(cfg, zap.NewNop(), store, idemStore, nil, tokens, authSvc, accountSvc, transferSvc)
	return &testServer{handler: router.Routes(), store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

// registerAndLogin onboards a user and returns their bearer token.
func (s *testServer) registerAndLogin(t *testing.T, name, email, handle string) string {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name":       name,
		"email":      email,
		"password":   "correct-horse",
		"handle":     handle,
		"face_image": faceImage,
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	return login.Token
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestRegisterReturnsAccountWithWelcomeBalance(t *testing.T) {
	s := setupAPI(t)
	rr := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name":       "Alice",
		"email":      "alice@example.com",
		"password":   "correct-horse",
		"handle":     "Alice@UPI",
		"face_image": faceImage,
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, "alice@upi", body["handle"])
	assert.Equal(t, "1000.00", body["balance"])
	assert.Equal(t, true, body["face_verified"])
	assert.NotContains(t, rr.Body.String(), "credential")
}

func TestRegisterDuplicateHandle(t *testing.T) {
	s := setupAPI(t)
	s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")

	rr := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name":       "Other Alice",
		"email":      "other@example.com",
		"password":   "correct-horse",
		"handle":     "alice@upi",
		"face_image": faceImage,
	}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRegisterWithoutFaceImage(t *testing.T) {
	s := setupAPI(t)
	rr := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "correct-horse",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	s := setupAPI(t)
	s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")

	rr := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRejectsUnknownFields(t *testing.T) {
	s := setupAPI(t)
	rr := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
		"role":     "admin",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWalletRequiresToken(t *testing.T) {
	s := setupAPI(t)

	rr := s.do(t, http.MethodGet, "/v1/wallet/balance", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = s.do(t, http.MethodGet, "/v1/wallet/balance", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetBalance(t *testing.T) {
	s := setupAPI(t)
	token := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")

	rr := s.do(t, http.MethodGet, "/v1/wallet/balance", token, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, "1000.00", body["balance"])
	assert.Equal(t, "alice@upi", body["handle"])
	assert.Equal(t, "INR", body["currency"])
}

func TestTransferMovesMoney(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	bob := s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]string{
		"receiver_handle": "BOB@upi",
		"amount":          "250.00",
		"memo":            "rent",
	}, map[string]string{"Idempotency-Key": "rent-1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, "bob@upi", body["receiver_handle"])
	assert.Equal(t, "Bob", body["receiver_name"])
	assert.Equal(t, "250.00", body["amount"])
	assert.Equal(t, "750.00", body["new_sender_balance"])
	assert.Regexp(t, `^TXN[0-9A-F]{32}$`, body["transaction_id"])

	rr = s.do(t, http.MethodGet, "/v1/wallet/balance", bob, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1250.00", decodeBody(t, rr)["balance"])

	rr = s.do(t, http.MethodGet, "/v1/wallet/transactions", alice, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Transactions []struct {
			TransactionID  string `json:"transaction_id"`
			ReceiverHandle string `json:"receiver_handle"`
			Amount         string `json:"amount"`
			Status         string `json:"status"`
		} `json:"transactions"`
		Limit int `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, body["transaction_id"], history.Transactions[0].TransactionID)
	assert.Equal(t, "SUCCESS", history.Transactions[0].Status)
	assert.Equal(t, "250.00", history.Transactions[0].Amount)
	assert.Equal(t, domain.DefaultHistoryLimit, history.Limit)
}

func TestTransferInsufficientFunds(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]string{
		"receiver_handle": "bob@upi",
		"amount":          "900.00",
	}, map[string]string{"Idempotency-Key": "first"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]string{
		"receiver_handle": "bob@upi",
		"amount":          "200.00",
	}, map[string]string{"Idempotency-Key": "second"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	body := decodeBody(t, rr)
	assert.Contains(t, body["detail"], "100.00")
	assert.True(t, strings.HasSuffix(body["type"].(string), "wallet/insufficient-funds"))

	assert.Len(t, s.store.Transactions(), 1)
}

func TestTransferErrorProblems(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	cases := []struct {
		name   string
		body   map[string]any
		status int
		slug   string
	}{
		{"zero amount", map[string]any{"receiver_handle": "bob@upi", "amount": "0"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"negative amount", map[string]any{"receiver_handle": "bob@upi", "amount": "-5"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"too many decimals", map[string]any{"receiver_handle": "bob@upi", "amount": "1.005"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"garbage amount", map[string]any{"receiver_handle": "bob@upi", "amount": "abc"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"nan amount", map[string]any{"receiver_handle": "bob@upi", "amount": "NaN"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"empty amount", map[string]any{"receiver_handle": "bob@upi", "amount": ""}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"missing amount", map[string]any{"receiver_handle": "bob@upi"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"boolean amount", map[string]any{"receiver_handle": "bob@upi", "amount": true}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"huge amount", map[string]any{"receiver_handle": "bob@upi", "amount": "1e400"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"garbage amount beats unknown receiver", map[string]any{"receiver_handle": "nobody@upi", "amount": "abc"}, http.StatusBadRequest, "wallet/invalid-amount"},
		{"unknown receiver", map[string]any{"receiver_handle": "nobody@upi", "amount": "10"}, http.StatusNotFound, "wallet/receiver-not-found"},
		{"self transfer", map[string]any{"receiver_handle": "alice@upi", "amount": "10"}, http.StatusBadRequest, "wallet/self-transfer"},
		{"memo too long", map[string]any{"receiver_handle": "bob@upi", "amount": "10", "memo": strings.Repeat("x", 141)}, http.StatusBadRequest, "wallet/invalid-memo"},
		{"insufficient funds", map[string]any{"receiver_handle": "bob@upi", "amount": "1000.01"}, http.StatusUnprocessableEntity, "wallet/insufficient-funds"},
		{"unknown field", map[string]any{"receiver_handle": "bob@upi", "amount": "10", "currency": "USD"}, http.StatusBadRequest, "request/invalid-body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, tc.body, map[string]string{"Idempotency-Key": tc.name})
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
			problemType, _ := decodeBody(t, rr)["type"].(string)
			assert.True(t, strings.HasSuffix(problemType, tc.slug), "got type %q", problemType)
		})
	}

	rr := s.do(t, http.MethodGet, "/v1/wallet/balance", alice, nil, nil)
	assert.Equal(t, "1000.00", decodeBody(t, rr)["balance"])
	assert.Empty(t, s.store.Transactions())
}

func TestTransferAcceptsNumericAmount(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]any{
		"receiver_handle": "bob@upi",
		"amount":          12.5,
	}, map[string]string{"Idempotency-Key": "numeric"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "987.50", decodeBody(t, rr)["new_sender_balance"])
}

func TestGetTransactionDetail(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	bob := s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]string{
		"receiver_handle": "bob@upi",
		"amount":          "40.00",
		"memo":            "books",
	}, map[string]string{"Idempotency-Key": "books"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	txnID := decodeBody(t, rr)["transaction_id"].(string)

	rr = s.do(t, http.MethodGet, "/v1/wallet/transactions/"+txnID, alice, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, txnID, body["transaction_id"])
	assert.Equal(t, "40.00", body["amount"])
	assert.Equal(t, "books", body["memo"])
	assert.Equal(t, "SUCCESS", body["status"])

	for _, tc := range []struct {
		token string
		id    string
	}{
		{bob, txnID},
		{alice, "TXNMISSING"},
	} {
		rr = s.do(t, http.MethodGet, "/v1/wallet/transactions/"+tc.id, tc.token, nil, nil)
		require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
		problemType, _ := decodeBody(t, rr)["type"].(string)
		assert.True(t, strings.HasSuffix(problemType, "wallet/transaction-not-found"), problemType)
	}
}

func TestTransferRequiresIdempotencyKey(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]string{
		"receiver_handle": "bob@upi",
		"amount":          "10",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransferIdempotencyReplay(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")

	payload := map[string]string{"receiver_handle": "bob@upi", "amount": "100.00"}
	headers := map[string]string{"Idempotency-Key": "pay-bob"}

	first := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, payload, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, payload, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, s.store.Transactions(), 1)

	rr := s.do(t, http.MethodGet, "/v1/wallet/balance", alice, nil, nil)
	assert.Equal(t, "900.00", decodeBody(t, rr)["balance"])

	conflict := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, map[string]string{
		"receiver_handle": "bob@upi",
		"amount":          "5.00",
	}, headers)
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestIdempotencyKeysAreScopedPerAccount(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")
	bob := s.registerAndLogin(t, "Bob", "bob@example.com", "bob@upi")
	s.registerAndLogin(t, "Carol", "carol@example.com", "carol@upi")

	payload := map[string]string{"receiver_handle": "carol@upi", "amount": "10.00"}
	headers := map[string]string{"Idempotency-Key": "shared"}

	rr := s.do(t, http.MethodPost, "/v1/wallet/transfers", alice, payload, headers)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = s.do(t, http.MethodPost, "/v1/wallet/transfers", bob, payload, headers)
	require.Equal(t, http.StatusCreated, rr.Code)

	assert.Len(t, s.store.Transactions(), 2)
}

func TestListTransactionsLimit(t *testing.T) {
	s := setupAPI(t)
	alice := s.registerAndLogin(t, "Alice", "alice@example.com", "alice@upi")

	for _, limit := range []string{"0", "201", "abc"} {
		rr := s.do(t, http.MethodGet, "/v1/wallet/transactions?limit="+limit, alice, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, limit)
	}

	rr := s.do(t, http.MethodGet, "/v1/wallet/transactions?limit=5", alice, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(5), body["limit"])
	assert.Empty(t, body["transactions"])
}

func TestOperationalEndpoints(t *testing.T) {
	s := setupAPI(t)
	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/openapi.yaml", "/swagger/index.html"} {
		rr := s.do(t, http.MethodGet, path, "", nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}
