package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixelmint/pixelmint/internal/models"
)

// accountResponse is the account without its credential secret.
type accountResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	Credits   int64       `json:"credits"`
	CreatedAt time.Time   `json:"createdAt"`
}

func toAccountResponse(a models.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Role:      a.Role,
		Credits:   a.Credits,
		CreatedAt: a.CreatedAt,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string          `json:"token"`
	User  accountResponse `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	account, err := s.book.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	token, err := s.issueToken(account)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toAccountResponse(account)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	account, err := s.book.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	token, err := s.issueToken(account)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Token: token, User: toAccountResponse(account)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.book.ClearSession(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toAccountResponse(accountFrom(r)))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans := s.book.ActivePlans()
	if plans == nil {
		plans = []models.Plan{}
	}
	s.writeJSON(w, http.StatusOK, plans)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count"`
}

type generateResponse struct {
	Images  []models.GeneratedImage `json:"images"`
	Credits int64                   `json:"credits"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt required")
		return
	}
	if req.Count < 1 {
		req.Count = 1
	}
	if req.Count > s.cfg.MaxImagesPerRequest {
		s.writeError(w, http.StatusBadRequest, "too many images requested")
		return
	}

	images, err := s.generation.Generate(r.Context(), account, req.Prompt, req.Count)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	updated, err := s.book.AccountByID(account.ID)
	if err != nil {
		updated = account
	}
	s.writeJSON(w, http.StatusCreated, generateResponse{Images: images, Credits: updated.Credits})
}

type openTransactionRequest struct {
	PlanID string `json:"planId"`
	UTR    string `json:"utr"`
}

func (s *Server) handleOpenTransaction(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)

	var req openTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PlanID == "" || strings.TrimSpace(req.UTR) == "" {
		s.writeError(w, http.StatusBadRequest, "planId and utr required")
		return
	}

	txn, err := s.book.OpenTransaction(r.Context(), account.ID, req.PlanID, strings.TrimSpace(req.UTR))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleMyTransactions(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	txns := s.book.TransactionsFor(account.ID)
	if txns == nil {
		txns = []models.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleMyImages(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	images := s.book.ImagesFor(r.Context(), account.ID)
	if images == nil {
		images = []models.GeneratedImage{}
	}
	s.writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleImageByID(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	imageID := chi.URLParam(r, "id")

	image, err := s.book.ImageByID(r.Context(), imageID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if image.UserID != account.ID && account.Role != models.RoleAdmin {
		s.writeError(w, http.StatusForbidden, "not your image")
		return
	}
	s.writeJSON(w, http.StatusOK, image)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	accounts := s.book.Accounts()
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type adjustCreditsRequest struct {
	Amount    int64  `json:"amount"`
	Operation string `json:"operation"` // add or subtract
}

func (s *Server) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	var req adjustCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Amount <= 0 {
		s.writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	delta := req.Amount
	switch req.Operation {
	case "add":
	case "subtract":
		delta = -delta
	default:
		s.writeError(w, http.StatusBadRequest, "operation must be add or subtract")
		return
	}

	account, err := s.book.AdjustBalance(r.Context(), accountID, delta)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handleAllTransactions(w http.ResponseWriter, r *http.Request) {
	var txns []models.Transaction
	switch status := r.URL.Query().Get("status"); status {
	case "":
		txns = s.book.Transactions()
	case string(models.StatusPending):
		txns = s.book.PendingTransactions()
	case string(models.StatusApproved), string(models.StatusRejected):
		for _, t := range s.book.Transactions() {
			if t.Status == models.TransactionStatus(status) {
				txns = append(txns, t)
			}
		}
	default:
		s.writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, txns)
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleDecideTransaction(w http.ResponseWriter, r *http.Request) {
	admin := accountFrom(r)
	txnID := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	err := s.book.DecideTransaction(r.Context(), admin.ID, txnID, models.TransactionStatus(req.Decision))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
