package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmint/pixelmint/internal/config"
	"github.com/pixelmint/pixelmint/internal/generation"
	"github.com/pixelmint/pixelmint/internal/httpapi"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/models"
	"github.com/pixelmint/pixelmint/internal/service"
	"github.com/pixelmint/pixelmint/internal/storage"
	"github.com/pixelmint/pixelmint/internal/store"
)

type stubGenerator struct {
	images []generation.Image
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ int) ([]generation.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.images, nil
}

type testContext struct {
	handler http.Handler
	book    *ledger.Book
	gen     *stubGenerator
}

func setupServer(t *testing.T) *testContext {
	t.Helper()
	mem := store.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		AdminEmail:          "admin@example.com",
		AdminPassword:       "secret",
		StartingCredits:     25,
		GenerationCost:      5,
		MaxImagesPerRequest: 4,
		JWTSecret:           "test-secret",
		TokenTTL:            time.Hour,
	}

	book := ledger.New(mem, storage.NewKV(mem), log, ledger.Config{
		AdminEmail:      cfg.AdminEmail,
		AdminPassword:   cfg.AdminPassword,
		StartingCredits: cfg.StartingCredits,
		SeedPlans:       ledger.DefaultSeedPlans(),
	})
	t.Cleanup(book.Close)

	ctx := context.Background()
	require.NoError(t, book.Load(ctx))
	require.NoError(t, book.Bootstrap(ctx))

	gen := &stubGenerator{}
	svc := service.NewGenerationService(cfg, log, book, gen)
	srv := httpapi.NewServer(cfg, log, book, svc)

	return &testContext{handler: srv.Handler(), book: book, gen: gen}
}

func performRequest(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type authBody struct {
	Token string `json:"token"`
	User  struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Role    string `json:"role"`
		Credits int64  `json:"credits"`
	} `json:"user"`
}

func signup(t *testing.T, tc *testContext, email, password string) authBody {
	t.Helper()
	w := performRequest(t, tc.handler, http.MethodPost, "/api/auth/signup",
		map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[authBody](t, w)
}

func login(t *testing.T, tc *testContext, email, password string) authBody {
	t.Helper()
	w := performRequest(t, tc.handler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeBody[authBody](t, w)
}

func TestSignupAndLogin(t *testing.T) {
	tc := setupServer(t)

	created := signup(t, tc, "user@example.com", "pw")
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "user", created.User.Role)
	assert.Equal(t, int64(25), created.User.Credits)

	// The credential secret must never leave the server.
	raw := performRequest(t, tc.handler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "user@example.com", "password": "pw"}, "")
	require.Equal(t, http.StatusOK, raw.Code)
	assert.NotContains(t, raw.Body.String(), "passwordHash")

	w := performRequest(t, tc.handler, http.MethodPost, "/api/auth/signup",
		map[string]string{"email": "user@example.com", "password": "other"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = performRequest(t, tc.handler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "user@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(t, tc.handler, http.MethodPost, "/api/auth/signup",
		map[string]string{"email": "", "password": ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionGating(t *testing.T) {
	tc := setupServer(t)

	w := performRequest(t, tc.handler, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(t, tc.handler, http.MethodGet, "/api/me", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	user := signup(t, tc, "user@example.com", "pw")
	w = performRequest(t, tc.handler, http.MethodGet, "/api/me", nil, user.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminGating(t *testing.T) {
	tc := setupServer(t)

	user := signup(t, tc, "user@example.com", "pw")
	w := performRequest(t, tc.handler, http.MethodGet, "/api/admin/users", nil, user.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := login(t, tc, "admin@example.com", "secret")
	w = performRequest(t, tc.handler, http.MethodGet, "/api/admin/users", nil, admin.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlansArePublic(t *testing.T) {
	tc := setupServer(t)

	w := performRequest(t, tc.handler, http.MethodGet, "/api/plans", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	plans := decodeBody[[]models.Plan](t, w)
	assert.Len(t, plans, 3)
}

func TestPurchaseApprovalFlow(t *testing.T) {
	tc := setupServer(t)

	user := signup(t, tc, "buyer@example.com", "pw")
	admin := login(t, tc, "admin@example.com", "secret")

	w := performRequest(t, tc.handler, http.MethodPost, "/api/transactions",
		map[string]string{"planId": "plan_1", "utr": "UTR-42"}, user.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	txn := decodeBody[models.Transaction](t, w)
	assert.Equal(t, models.StatusPending, txn.Status)

	w = performRequest(t, tc.handler, http.MethodGet, "/api/admin/transactions?status=pending", nil, admin.Token)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decodeBody[[]models.Transaction](t, w)
	require.Len(t, pending, 1)
	assert.Equal(t, txn.ID, pending[0].ID)

	decide := fmt.Sprintf("/api/admin/transactions/%s/decision", txn.ID)
	w = performRequest(t, tc.handler, http.MethodPost, decide,
		map[string]string{"decision": "approved"}, admin.Token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(t, tc.handler, http.MethodGet, "/api/me", nil, user.Token)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[map[string]any](t, w)
	assert.Equal(t, float64(125), me["credits"]) // 25 + 100

	// Duplicate decision is a quiet no-op.
	w = performRequest(t, tc.handler, http.MethodPost, decide,
		map[string]string{"decision": "approved"}, admin.Token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(t, tc.handler, http.MethodGet, "/api/me", nil, user.Token)
	me = decodeBody[map[string]any](t, w)
	assert.Equal(t, float64(125), me["credits"])

	w = performRequest(t, tc.handler, http.MethodGet, "/api/transactions", nil, user.Token)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decodeBody[[]models.Transaction](t, w)
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusApproved, mine[0].Status)
}

func TestPurchaseValidation(t *testing.T) {
	tc := setupServer(t)
	user := signup(t, tc, "buyer@example.com", "pw")

	w := performRequest(t, tc.handler, http.MethodPost, "/api/transactions",
		map[string]string{"planId": "plan_404", "utr": "UTR-42"}, user.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(t, tc.handler, http.MethodPost, "/api/transactions",
		map[string]string{"planId": "plan_1", "utr": "  "}, user.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateEndpoint(t *testing.T) {
	tc := setupServer(t)
	tc.gen.images = []generation.Image{
		{Payload: "data:image/png;base64,A"},
		{Payload: "data:image/png;base64,B"},
	}

	user := signup(t, tc, "artist@example.com", "pw")

	w := performRequest(t, tc.handler, http.MethodPost, "/api/generate",
		map[string]any{"prompt": "a lion", "count": 2}, user.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeBody[struct {
		Images  []models.GeneratedImage `json:"images"`
		Credits int64                   `json:"credits"`
	}](t, w)
	require.Len(t, resp.Images, 2)
	assert.Equal(t, int64(15), resp.Credits) // 25 - 2*5

	tc.book.Flush()
	w = performRequest(t, tc.handler, http.MethodGet, "/api/images", nil, user.Token)
	require.Equal(t, http.StatusOK, w.Code)
	images := decodeBody[[]models.GeneratedImage](t, w)
	require.Len(t, images, 2)
	assert.Equal(t, resp.Images[1].ID, images[0].ID) // most recent first
}

func TestGenerateInsufficientCredits(t *testing.T) {
	tc := setupServer(t)
	tc.gen.images = []generation.Image{{Payload: "x"}}

	user := signup(t, tc, "poor@example.com", "pw")
	_, err := tc.book.AdjustBalance(context.Background(), user.User.ID, -25)
	require.NoError(t, err)

	w := performRequest(t, tc.handler, http.MethodPost, "/api/generate",
		map[string]any{"prompt": "a lion", "count": 1}, user.Token)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestGenerateProviderFailure(t *testing.T) {
	tc := setupServer(t)
	tc.gen.err = fmt.Errorf("content policy violation")

	user := signup(t, tc, "artist@example.com", "pw")

	w := performRequest(t, tc.handler, http.MethodPost, "/api/generate",
		map[string]any{"prompt": "a lion", "count": 1}, user.Token)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "content policy violation")
}

func TestImageOwnership(t *testing.T) {
	tc := setupServer(t)
	tc.gen.images = []generation.Image{{Payload: "data:image/png;base64,A"}}

	owner := signup(t, tc, "owner@example.com", "pw")
	other := signup(t, tc, "other@example.com", "pw")
	admin := login(t, tc, "admin@example.com", "secret")

	w := performRequest(t, tc.handler, http.MethodPost, "/api/generate",
		map[string]any{"prompt": "a lion", "count": 1}, owner.Token)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody[struct {
		Images []models.GeneratedImage `json:"images"`
	}](t, w)
	tc.book.Flush()

	path := "/api/images/" + resp.Images[0].ID
	w = performRequest(t, tc.handler, http.MethodGet, path, nil, other.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(t, tc.handler, http.MethodGet, path, nil, owner.Token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(t, tc.handler, http.MethodGet, path, nil, admin.Token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(t, tc.handler, http.MethodGet, "/api/images/img_missing", nil, owner.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdjustCreditsEndpoint(t *testing.T) {
	tc := setupServer(t)

	user := signup(t, tc, "user@example.com", "pw")
	admin := login(t, tc, "admin@example.com", "secret")

	path := "/api/admin/users/" + user.User.ID + "/credits"

	w := performRequest(t, tc.handler, http.MethodPost, path,
		map[string]any{"amount": 10, "operation": "add"}, admin.Token)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeBody[map[string]any](t, w)
	assert.Equal(t, float64(35), updated["credits"])

	w = performRequest(t, tc.handler, http.MethodPost, path,
		map[string]any{"amount": 100, "operation": "subtract"}, admin.Token)
	require.Equal(t, http.StatusOK, w.Code)
	updated = decodeBody[map[string]any](t, w)
	assert.Equal(t, float64(0), updated["credits"])

	w = performRequest(t, tc.handler, http.MethodPost, path,
		map[string]any{"amount": 10, "operation": "divide"}, admin.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, tc.handler, http.MethodPost, "/api/admin/users/user_missing/credits",
		map[string]any{"amount": 10, "operation": "add"}, admin.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The admin balance sits at MaxInt64; adding to it must not wrap it
	// around and zero it out.
	before, err := tc.book.AccountByID(admin.User.ID)
	require.NoError(t, err)
	w = performRequest(t, tc.handler, http.MethodPost, "/api/admin/users/"+admin.User.ID+"/credits",
		map[string]any{"amount": 10, "operation": "add"}, admin.Token)
	require.Equal(t, http.StatusOK, w.Code)
	after, err := tc.book.AccountByID(admin.User.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Credits, after.Credits)
}

func TestLogoutClearsPersistedSession(t *testing.T) {
	tc := setupServer(t)

	user := signup(t, tc, "user@example.com", "pw")

	_, err := tc.book.LoadSession(context.Background())
	require.NoError(t, err)

	w := performRequest(t, tc.handler, http.MethodPost, "/api/auth/logout", nil, user.Token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err = tc.book.LoadSession(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotAuthenticated)
}
