package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflebox/rafflebox-backend/api/middleware"
	"github.com/rafflebox/rafflebox-backend/internal/wallet"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/pagination"
)

type stubWalletService struct {
	summary      func(ctx context.Context, agentID uuid.UUID, refresh bool) (wallet.Summary, error)
	recomputeOne func(ctx context.Context, agentID uuid.UUID) (wallet.Summary, error)
	recomputeAll func(ctx context.Context) (wallet.BatchResult, error)
	transactions func(ctx context.Context, agentID uuid.UUID, page pagination.Params) (wallet.TransactionPage, error)
	withdraw     func(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalReceipt, error)
}

func (s *stubWalletService) Summary(ctx context.Context, agentID uuid.UUID, refresh bool) (wallet.Summary, error) {
	return s.summary(ctx, agentID, refresh)
}

func (s *stubWalletService) AttributedTransactions(ctx context.Context, agentID uuid.UUID, page pagination.Params) (wallet.TransactionPage, error) {
	return s.transactions(ctx, agentID, page)
}

func (s *stubWalletService) RecomputeOne(ctx context.Context, agentID uuid.UUID) (wallet.Summary, error) {
	return s.recomputeOne(ctx, agentID)
}

func (s *stubWalletService) RecomputeAll(ctx context.Context) (wallet.BatchResult, error) {
	return s.recomputeAll(ctx)
}

func (s *stubWalletService) SubmitWithdrawal(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalReceipt, error) {
	return s.withdraw(ctx, req)
}

func testControllerLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withAgent(req *http.Request, agentID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithAgentID(req.Context(), agentID.String()))
}

func TestWalletSummaryHandler(t *testing.T) {
	agentID := uuid.New()
	var sawRefresh bool
	svc := &stubWalletService{
		summary: func(ctx context.Context, id uuid.UUID, refresh bool) (wallet.Summary, error) {
			if id != agentID {
				t.Fatalf("expected agent %s, got %s", agentID, id)
			}
			sawRefresh = refresh
			return wallet.Summary{AgentID: id, CommissionCents: 600, RateBps: 1000}, nil
		},
	}

	req := withAgent(httptest.NewRequest(http.MethodGet, "/api/v1/wallet?refresh=true", nil), agentID)
	rec := httptest.NewRecorder()
	WalletSummary(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if !sawRefresh {
		t.Fatal("expected refresh flag to pass through")
	}
	var envelope struct {
		Data wallet.Summary `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.CommissionCents != 600 {
		t.Fatalf("expected commission 600, got %d", envelope.Data.CommissionCents)
	}
}

func TestWalletSummaryHandlerMissingIdentity(t *testing.T) {
	svc := &stubWalletService{
		summary: func(ctx context.Context, id uuid.UUID, refresh bool) (wallet.Summary, error) {
			t.Fatal("service must not be called")
			return wallet.Summary{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	rec := httptest.NewRecorder()
	WalletSummary(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWalletTransactionsHandlerPassesPagination(t *testing.T) {
	agentID := uuid.New()
	svc := &stubWalletService{
		transactions: func(ctx context.Context, id uuid.UUID, page pagination.Params) (wallet.TransactionPage, error) {
			if id != agentID {
				t.Fatalf("expected agent %s, got %s", agentID, id)
			}
			if page.Limit != 10 || page.Cursor != "abc123" {
				t.Fatalf("unexpected pagination params %+v", page)
			}
			return wallet.TransactionPage{NextCursor: "next"}, nil
		},
	}

	req := withAgent(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=10&cursor=abc123", nil), agentID)
	rec := httptest.NewRecorder()
	WalletTransactions(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var envelope struct {
		Data wallet.TransactionPage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.NextCursor != "next" {
		t.Fatalf("expected next cursor to pass through, got %+v", envelope.Data)
	}
}

func TestWalletWithdrawHandler(t *testing.T) {
	agentID := uuid.New()
	svc := &stubWalletService{
		withdraw: func(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalReceipt, error) {
			if req.Amount != "150.00" || req.Method != "gcash" {
				t.Fatalf("unexpected request %+v", req)
			}
			return wallet.WithdrawalReceipt{ReferenceID: uuid.New(), AgentID: req.AgentID, AmountCents: 15000, Method: req.Method}, nil
		},
	}

	body := `{"amount":"150.00","method":"gcash","account_name":"Juan dela Cruz","account_number":"09171234567"}`
	req := withAgent(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(body)), agentID)
	rec := httptest.NewRecorder()
	WalletWithdraw(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
}

func TestWalletWithdrawHandlerRejectsBadBody(t *testing.T) {
	svc := &stubWalletService{
		withdraw: func(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalReceipt, error) {
			t.Fatal("service must not be called")
			return wallet.WithdrawalReceipt{}, nil
		},
	}

	body := `{"amount":"150.00","method":"paypal","account_name":"Juan","account_number":"09171234567"}`
	req := withAgent(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	WalletWithdraw(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestWalletWithdrawHandlerSurfacesValidationDetails(t *testing.T) {
	svc := &stubWalletService{
		withdraw: func(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalReceipt, error) {
			return wallet.WithdrawalReceipt{}, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal request rejected").
				WithDetails([]string{"amount is below the minimum withdrawal of 100.00"})
		},
	}

	body := `{"amount":"50.00","method":"gcash","account_name":"Juan dela Cruz","account_number":"09171234567"}`
	req := withAgent(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	WalletWithdraw(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != "VALIDATION_ERROR" || len(envelope.Error.Details) != 1 {
		t.Fatalf("unexpected error payload %+v", envelope.Error)
	}
}

func TestAdminRecomputeAgentHandler(t *testing.T) {
	agentID := uuid.New()
	svc := &stubWalletService{
		recomputeOne: func(ctx context.Context, id uuid.UUID) (wallet.Summary, error) {
			if id != agentID {
				t.Fatalf("expected %s, got %s", agentID, id)
			}
			return wallet.Summary{AgentID: id, CommissionCents: 42}, nil
		},
	}

	router := chi.NewRouter()
	router.Post("/api/admin/v1/agents/{agentID}/recompute", AdminRecomputeAgent(svc, testControllerLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/agents/"+agentID.String()+"/recompute", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestAdminRecomputeAgentHandlerBadID(t *testing.T) {
	svc := &stubWalletService{}
	router := chi.NewRouter()
	router.Post("/api/admin/v1/agents/{agentID}/recompute", AdminRecomputeAgent(svc, testControllerLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/agents/not-a-uuid/recompute", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminRecomputeAllHandlerReportsFailures(t *testing.T) {
	brokenID := uuid.New()
	svc := &stubWalletService{
		recomputeAll: func(ctx context.Context) (wallet.BatchResult, error) {
			return wallet.BatchResult{
				UpdatedCount: 2,
				FailedCount:  1,
				Skipped:      []wallet.SkippedAgent{{AgentID: uuid.New(), Reason: "no referral code"}},
				Errors:       &wallet.AgentError{AgentID: brokenID, Err: context.DeadlineExceeded},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/wallet/recompute", nil)
	rec := httptest.NewRecorder()
	AdminRecomputeAll(svc, testControllerLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data batchResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.UpdatedCount != 2 || envelope.Data.FailedCount != 1 {
		t.Fatalf("unexpected counts %+v", envelope.Data)
	}
	if len(envelope.Data.Failures) != 1 || !strings.Contains(envelope.Data.Failures[0], brokenID.String()) {
		t.Fatalf("expected failure naming the agent, got %v", envelope.Data.Failures)
	}
}
