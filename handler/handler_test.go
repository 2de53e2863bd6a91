package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/booking"
	"github.com/phbpx/mystic-services/calendar"
	"github.com/phbpx/mystic-services/catalog"
	"github.com/phbpx/mystic-services/intake"
	"github.com/phbpx/mystic-services/payment"
	"github.com/phbpx/mystic-services/pkg/auth"
	"github.com/phbpx/mystic-services/pkg/database"
	"github.com/phbpx/mystic-services/pkg/mq"
	"github.com/phbpx/mystic-services/sqlstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// fakeProvider opens sessions and reports whatever status is set.
type fakeProvider struct {
	mu       sync.Mutex
	status   mystic.SessionStatus
	requests []mystic.SessionRequest
}

func (p *fakeProvider) CreateSession(_ context.Context, req mystic.SessionRequest) (mystic.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return mystic.Session{ID: "cs_test_1", RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (p *fakeProvider) SessionStatus(context.Context, string) (mystic.SessionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

func (p *fakeProvider) Requests() []mystic.SessionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mystic.SessionRequest(nil), p.requests...)
}

func (p *fakeProvider) set(s mystic.SessionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

type fakeVerifier struct {
	event mystic.SessionEvent
}

func (v fakeVerifier) Verify(_ []byte, signature string) (mystic.SessionEvent, error) {
	if signature != "good" {
		return mystic.SessionEvent{}, auth.ErrInvalidToken
	}
	return v.event, nil
}

type testAPI struct {
	srv      *httptest.Server
	provider *fakeProvider
}

func newTestAPI(t *testing.T, verifier WebhookVerifier) *testAPI {
	t.Helper()
	log := otelzap.New(zap.NewNop()).Sugar()

	db, err := database.Open(database.Config{Driver: database.SQLite, Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	store := sqlstore.New(db)

	cat, err := catalog.New(mystic.Service{
		ID:    "amor",
		Name:  "Ritual de Amor",
		Price: decimal.RequireFromString("97.00"),
	})
	require.NoError(t, err)

	schedule := calendar.DefaultSchedule()
	provider := &fakeProvider{status: mystic.SessionStatus{PaymentStatus: "unpaid", SessionStatus: "open"}}
	poller := payment.NewPoller(provider, store, mq.Discard{}, log, payment.WithInterval(time.Millisecond), payment.WithMaxAttempts(3))
	ledger := booking.NewLedger(schedule, store, mq.Discard{}, log)
	intakes := intake.NewService(store, store, mq.Discard{}, log)

	admin, err := auth.NewAdmin("s3cret", auth.NewIssuer("signing-key", time.Hour))
	require.NoError(t, err)

	api := API{
		ServerName:  "test",
		CORSOrigins: []string{"https://site"},
		Storefront:  NewStorefrontHandler(
			cat,
			calendar.New(schedule, store),
			ledger,
			payment.NewInitiator(cat, provider, "brl", log),
			poller,
			intakes,
			log,
		),
		Admin:     NewAdminHandler(admin, ledger, intakes, log),
		Readiness: func(ctx context.Context) error { return database.StatusCheck(ctx, db) },
	}
	if verifier != nil {
		api.Webhook = NewWebhookHandler(verifier, poller, log)
	}

	srv := httptest.NewServer(Routes(api))
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, provider: provider}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, header http.Header) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func futureDate() string {
	return time.Now().UTC().AddDate(0, 0, 7).Format(calendar.DateLayout)
}

func TestCheckoutToIntake(t *testing.T) {
	api := newTestAPI(t, nil)

	status, body := api.do(t, http.MethodPost, "/checkout", map[string]string{
		"service_id": "amor",
		"origin_url": "https://site",
	}, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", body["url"])
	assert.Equal(t, "cs_test_1", body["session_id"])

	requests := api.provider.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, int64(9700), requests[0].AmountMinor)
	assert.Equal(t, "https://site/success?session_id={CHECKOUT_SESSION_ID}", requests[0].SuccessURL)

	// Intake before the payment is confirmed.
	fields := map[string]string{
		"session_id":   "cs_test_1",
		"service_type": "amor",
		"full_name":    "Ana Souza",
		"birth_date":   "1990-03-14",
		"phone":        "+55 11 99999-0000",
		"situation":    "we drifted apart",
	}
	status, _ = api.do(t, http.MethodPost, "/intakes", fields, nil)
	assert.Equal(t, http.StatusPaymentRequired, status)

	api.provider.set(mystic.SessionStatus{
		PaymentStatus: "paid",
		SessionStatus: "complete",
		AmountTotal:   9700,
		Currency:      "brl",
		Metadata:      map[string]string{mystic.MetaServiceType: "amor"},
	})

	status, body = api.do(t, http.MethodGet, "/checkout/status/cs_test_1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(mystic.OutcomeCompleted), body["outcome"])
	assert.Equal(t, "amor", body["service_type"])

	status, body = api.do(t, http.MethodPost, "/intakes", fields, nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "cs_test_1", body["session_id"])
	assert.Equal(t, "amor", body["service_type"])
	assert.Equal(t, "Ana Souza", body["full_name"])

	status, _ = api.do(t, http.MethodPost, "/intakes", fields, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestCheckout_Errors(t *testing.T) {
	api := newTestAPI(t, nil)

	status, _ := api.do(t, http.MethodPost, "/checkout", map[string]string{"service_id": "tarot", "origin_url": "https://site"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := api.do(t, http.MethodPost, "/checkout", map[string]string{"service_id": "amor", "origin_url": "site"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, []interface{}{"origin_url"}, body["fields"])

	// Origin header stands in for a missing origin_url.
	status, _ = api.do(t, http.MethodPost, "/checkout", map[string]string{"service_id": "amor"}, http.Header{"Origin": {"https://site"}})
	assert.Equal(t, http.StatusOK, status)
}

func TestPaymentStatus_TimedOut(t *testing.T) {
	api := newTestAPI(t, nil)

	status, body := api.do(t, http.MethodGet, "/checkout/status/cs_test_1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(mystic.OutcomeTimedOut), body["outcome"])
	assert.Equal(t, float64(3), body["attempts"])
}

func TestSlotsAndReservations(t *testing.T) {
	api := newTestAPI(t, nil)
	date := futureDate()

	status, body := api.do(t, http.MethodGet, "/slots/"+date, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["available"], 24)

	reserve := map[string]string{
		"date":       date,
		"start_time": "15:00",
		"name":       "Ana",
		"phone":      "+55 11 99999-0000",
	}
	status, body = api.do(t, http.MethodPost, "/reservations", reserve, nil)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = api.do(t, http.MethodPost, "/reservations", reserve, nil)
	require.Equal(t, http.StatusConflict, status)
	assert.Len(t, body["available"], 23)
	assert.NotContains(t, body["available"], "15:00")

	status, body = api.do(t, http.MethodGet, "/slots/"+date, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body["available"], "15:00")

	reserve["start_time"] = "15:05"
	status, _ = api.do(t, http.MethodPost, "/reservations", reserve, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/slots/tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodGet, "/slots/2000-01-01", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["available"])
}

func TestAdmin(t *testing.T) {
	api := newTestAPI(t, nil)
	date := futureDate()

	status, body := api.do(t, http.MethodPost, "/reservations", map[string]string{
		"date":       date,
		"start_time": "16:00",
		"name":       "Ana",
		"phone":      "123",
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	id := body["reservation"].(map[string]interface{})["id"].(string)

	status, _ = api.do(t, http.MethodGet, "/admin/reservations", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodGet, "/admin/reservations", nil, http.Header{"Authorization": {"Bearer forged"}})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodPost, "/admin/login", map[string]string{"password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = api.do(t, http.MethodPost, "/admin/login", map[string]string{"password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, status)
	bearer := http.Header{"Authorization": {"Bearer " + body["token"].(string)}}

	status, body = api.do(t, http.MethodGet, "/admin/reservations?date="+date, nil, bearer)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["reservations"], 1)

	status, body = api.do(t, http.MethodPut, "/admin/reservations/"+id+"/status", map[string]string{"status": "confirmed"}, bearer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["reservation"].(map[string]interface{})["status"])

	status, _ = api.do(t, http.MethodPut, "/admin/reservations/"+id+"/status", map[string]string{"status": "archived"}, bearer)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/admin/reservations/00000000-0000-0000-0000-000000000000/status", map[string]string{"status": "completed"}, bearer)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = api.do(t, http.MethodGet, "/admin/intakes", nil, bearer)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["intakes"])
}

func TestWebhook(t *testing.T) {
	api := newTestAPI(t, fakeVerifier{event: mystic.SessionEvent{
		SessionID: "cs_hook",
		Status: mystic.SessionStatus{
			PaymentStatus: "paid",
			SessionStatus: "complete",
			Metadata:      map[string]string{mystic.MetaServiceType: "amor"},
		},
	}})

	status, _ := api.do(t, http.MethodPost, "/webhook/stripe", map[string]string{}, http.Header{"Stripe-Signature": {"bad"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := api.do(t, http.MethodPost, "/webhook/stripe", map[string]string{}, http.Header{"Stripe-Signature": {"good"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(mystic.OutcomeCompleted), body["outcome"])

	// The recorded payment unlocks the intake.
	status, _ = api.do(t, http.MethodPost, "/intakes", map[string]string{
		"session_id": "cs_hook",
		"full_name":  "Ana Souza",
		"birth_date": "1990-03-14",
		"phone":      "123",
		"situation":  "x",
	}, nil)
	assert.Equal(t, http.StatusCreated, status)
}

func (a *testAPI) login(t *testing.T) http.Header {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/admin/login", map[string]string{"password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, status)
	return http.Header{"Authorization": {"Bearer " + body["token"].(string)}}
}

func TestAdmin_IntakeLifecycle(t *testing.T) {
	api := newTestAPI(t, fakeVerifier{event: mystic.SessionEvent{
		SessionID: "cs_hook",
		Status: mystic.SessionStatus{
			PaymentStatus: "paid",
			SessionStatus: "complete",
			AmountTotal:   9700,
			Currency:      "brl",
			Metadata: map[string]string{
				mystic.MetaServiceType: "amor",
				mystic.MetaServiceName: "Ritual de Amor",
			},
		},
	}})

	status, _ := api.do(t, http.MethodPost, "/webhook/stripe", map[string]string{}, http.Header{"Stripe-Signature": {"good"}})
	require.Equal(t, http.StatusOK, status)

	status, body := api.do(t, http.MethodPost, "/intakes", map[string]string{
		"session_id": "cs_hook",
		"full_name":  "Ana Souza",
		"birth_date": "1990-03-14",
		"phone":      "123",
		"situation":  "x",
	}, nil)
	require.Equal(t, http.StatusCreated, status, body)
	id := body["id"].(string)
	assert.Equal(t, "pending", body["status"])

	bearer := api.login(t)

	status, body = api.do(t, http.MethodGet, "/admin/intakes", nil, bearer)
	require.Equal(t, http.StatusOK, status)
	list := body["intakes"].([]interface{})
	require.Len(t, list, 1)
	paid := list[0].(map[string]interface{})["payment"].(map[string]interface{})
	assert.Equal(t, "Ritual de Amor", paid["service_name"])
	assert.Equal(t, float64(9700), paid["amount_total"])
	assert.Equal(t, "paid", paid["status"])

	status, body = api.do(t, http.MethodPut, "/admin/intakes/"+id+"/status", map[string]string{"status": "in_progress"}, bearer)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "in_progress", body["intake"].(map[string]interface{})["status"])

	status, _ = api.do(t, http.MethodPut, "/admin/intakes/"+id+"/status", map[string]string{"status": "shipped"}, bearer)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/admin/intakes/00000000-0000-0000-0000-000000000000/status", map[string]string{"status": "done"}, bearer)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodPut, "/admin/intakes/"+id+"/status", map[string]string{"status": "done"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCORS(t *testing.T) {
	api := newTestAPI(t, nil)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/checkout", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight("https://site")
	assert.Equal(t, "https://site", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	resp = preflight("https://elsewhere")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	status, _ := api.do(t, http.MethodGet, "/services", nil, http.Header{"Origin": {"https://site"}})
	assert.Equal(t, http.StatusOK, status)
}

func TestWebhook_NotMountedWithoutSecret(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, err := http.Post(api.srv.URL+"/webhook/stripe", "application/json", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadiness(t *testing.T) {
	api := newTestAPI(t, nil)

	status, body := api.do(t, http.MethodGet, "/readiness", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServices(t *testing.T) {
	api := newTestAPI(t, nil)

	status, body := api.do(t, http.MethodGet, "/services", nil, nil)
	require.Equal(t, http.StatusOK, status)
	services := body["services"].([]interface{})
	require.Len(t, services, 1)
	assert.Equal(t, "amor", services[0].(map[string]interface{})["id"])
}
