package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rafflebox/rafflebox-backend/internal/agents"
	"github.com/rafflebox/rafflebox-backend/internal/ledger"
	"github.com/rafflebox/rafflebox-backend/pkg/config"
	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
	"github.com/rafflebox/rafflebox-backend/pkg/enums"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/pagination"
)

type fakeAgents struct {
	byID map[uuid.UUID]*models.Agent

	balances      map[uuid.UUID]int64
	updateErrs    map[uuid.UUID]error
	lastBatchSize int
}

func newFakeAgents(list ...*models.Agent) *fakeAgents {
	f := &fakeAgents{
		byID:       map[uuid.UUID]*models.Agent{},
		balances:   map[uuid.UUID]int64{},
		updateErrs: map[uuid.UUID]error{},
	}
	for _, a := range list {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAgents) WithTx(tx *gorm.DB) agents.Repository { return f }

func (f *fakeAgents) FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	agent, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return agent, nil
}

func (f *fakeAgents) FindByReferralCode(ctx context.Context, code string) (*models.Agent, error) {
	for _, agent := range f.byID {
		if agent.ReferralCode == code {
			return agent, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAgents) FindByReferralCodeFold(ctx context.Context, code string) ([]models.Agent, error) {
	return nil, nil
}

func (f *fakeAgents) ForEachActiveBatch(ctx context.Context, batchSize int, fn func(batch []models.Agent) error) error {
	f.lastBatchSize = batchSize
	var active []models.Agent
	for _, agent := range f.byID {
		if agent.IsActive {
			active = append(active, *agent)
		}
	}
	for start := 0; start < len(active); start += batchSize {
		end := start + batchSize
		if end > len(active) {
			end = len(active)
		}
		if err := fn(active[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAgents) UpdateBalance(ctx context.Context, id uuid.UUID, balanceCents int64) error {
	if err := f.updateErrs[id]; err != nil {
		return err
	}
	if _, ok := f.byID[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.balances[id] = balanceCents
	return nil
}

type fakeLedgerService struct {
	byCode map[string]ledger.AttributedResult
	err    error
}

func (f *fakeLedgerService) Attributed(ctx context.Context, code string) (ledger.AttributedResult, error) {
	if f.err != nil {
		return ledger.AttributedResult{}, f.err
	}
	return f.byCode[code], nil
}

func (f *fakeLedgerService) Capabilities(ctx context.Context) ledger.Capabilities {
	return ledger.Capabilities{LegacyReferralColumn: true, MetadataColumn: true}
}

type fakePublisher struct {
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishPayoutRequest(ctx context.Context, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func attributed(cents ...int64) ledger.AttributedResult {
	var result ledger.AttributedResult
	for _, c := range cents {
		result.Transactions = append(result.Transactions, models.CashInTransaction{
			ID:          uuid.New(),
			OwnerID:     uuid.New(),
			AmountCents: c,
		})
	}
	return result
}

func newWalletService(t *testing.T, repo *fakeAgents, ledgerSvc *fakeLedgerService, publisher EventPublisher) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Agents:    repo,
		Ledger:    ledgerSvc,
		Publisher: publisher,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.WalletConfig{
			DefaultRateBps: DefaultRateBps,
			MinWithdrawal:  "100.00",
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSummaryComputesCommission(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": attributed(1000, 2000, 3000),
	}}
	svc := newWalletService(t, repo, ledgerSvc, nil)

	summary, err := svc.Summary(context.Background(), agent.ID, false)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalAttributedCents != 6000 {
		t.Fatalf("expected total 6000, got %d", summary.TotalAttributedCents)
	}
	if summary.CommissionCents != 600 {
		t.Fatalf("expected commission 600, got %d", summary.CommissionCents)
	}
	if summary.RateBps != DefaultRateBps {
		t.Fatalf("expected default rate, got %d", summary.RateBps)
	}
}

func TestSummaryUnknownAgent(t *testing.T) {
	svc := newWalletService(t, newFakeAgents(), &fakeLedgerService{}, nil)

	_, err := svc.Summary(context.Background(), uuid.New(), false)
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestAttributedTransactionsPaginates(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var result ledger.AttributedResult
	for i := 0; i < 3; i++ {
		result.Transactions = append(result.Transactions, models.CashInTransaction{
			ID:          uuid.New(),
			OwnerID:     uuid.New(),
			AmountCents: 1000,
			CreatedAt:   base.Add(-time.Duration(i) * time.Hour),
		})
	}
	svc := newWalletService(t, newFakeAgents(agent), &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": result,
	}}, nil)

	first, err := svc.AttributedTransactions(context.Background(), agent.ID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("AttributedTransactions: %v", err)
	}
	if len(first.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(first.Transactions))
	}
	if first.NextCursor == "" {
		t.Fatal("expected a next cursor on a truncated page")
	}

	second, err := svc.AttributedTransactions(context.Background(), agent.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("AttributedTransactions page 2: %v", err)
	}
	if len(second.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(second.Transactions))
	}
	if second.NextCursor != "" {
		t.Fatalf("expected no next cursor on the last page, got %q", second.NextCursor)
	}
	if second.Transactions[0].ID != result.Transactions[2].ID {
		t.Fatal("expected the oldest transaction on the last page")
	}
}

func TestAttributedTransactionsRejectsBadCursor(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	svc := newWalletService(t, newFakeAgents(agent), &fakeLedgerService{}, nil)

	_, err := svc.AttributedTransactions(context.Background(), agent.ID, pagination.Params{Cursor: "!!"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecomputeOneOverwritesBalance(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true, BalanceCents: 999999}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": attributed(1000, 2000, 3000),
	}}
	svc := newWalletService(t, repo, ledgerSvc, nil)

	summary, err := svc.RecomputeOne(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("RecomputeOne: %v", err)
	}
	if repo.balances[agent.ID] != 600 {
		t.Fatalf("expected balance 600, got %d", repo.balances[agent.ID])
	}

	// Recomputing again against the same ledger lands on the same balance.
	again, err := svc.RecomputeOne(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("RecomputeOne: %v", err)
	}
	if again.CommissionCents != summary.CommissionCents {
		t.Fatalf("recompute not idempotent: %d vs %d", again.CommissionCents, summary.CommissionCents)
	}
	if repo.balances[agent.ID] != 600 {
		t.Fatalf("expected balance 600 after second run, got %d", repo.balances[agent.ID])
	}
}

func TestRecomputeOneSkipsAgentWithoutCode(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), IsActive: true, BalanceCents: 4200}
	repo := newFakeAgents(agent)
	svc := newWalletService(t, repo, &fakeLedgerService{}, nil)

	summary, err := svc.RecomputeOne(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("RecomputeOne must be a no-op without a code, got %v", err)
	}
	if summary.CommissionCents != 0 || summary.TransactionCount != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
	if _, wrote := repo.balances[agent.ID]; wrote {
		t.Fatal("balance must not be written for an agent without a code")
	}
}

func TestRecomputeAllPartialFailure(t *testing.T) {
	healthy := &models.Agent{ID: uuid.New(), ReferralCode: "ALPHA", IsActive: true}
	noCode := &models.Agent{ID: uuid.New(), IsActive: true}
	broken := &models.Agent{ID: uuid.New(), ReferralCode: "CHARLIE", IsActive: true}
	repo := newFakeAgents(healthy, noCode, broken)
	repo.updateErrs[broken.ID] = errors.New("deadlock detected")

	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"ALPHA":   attributed(5000),
		"CHARLIE": attributed(10000),
	}}
	svc := newWalletService(t, repo, ledgerSvc, nil)

	result, err := svc.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("expected 1 update, got %d", result.UpdatedCount)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].AgentID != noCode.ID {
		t.Fatalf("expected the codeless agent skipped, got %+v", result.Skipped)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected 1 failure, got %d", result.FailedCount)
	}
	errs := multierr.Errors(result.Errors)
	if len(errs) != 1 {
		t.Fatalf("expected 1 collected error, got %d", len(errs))
	}
	var agentErr *AgentError
	if !errors.As(errs[0], &agentErr) || agentErr.AgentID != broken.ID {
		t.Fatalf("expected failure tied to the broken agent, got %v", errs[0])
	}
	if repo.balances[healthy.ID] != 500 {
		t.Fatalf("expected healthy agent balance 500, got %d", repo.balances[healthy.ID])
	}
}

func TestRecomputeAllUsesConfiguredBatchSize(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": attributed(1000),
	}}
	svc, err := NewService(ServiceParams{
		Agents: repo,
		Ledger: ledgerSvc,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.WalletConfig{
			DefaultRateBps:     DefaultRateBps,
			MinWithdrawal:      "100.00",
			RecomputeBatchSize: 25,
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.RecomputeAll(context.Background()); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if repo.lastBatchSize != 25 {
		t.Fatalf("expected configured batch size 25, got %d", repo.lastBatchSize)
	}
}

func TestSubmitWithdrawalPublishesPayout(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		// 600000 cents attributed, commission 60000 cents at the default rate.
		"AGENT7": attributed(600000),
	}}
	publisher := &fakePublisher{}
	svc := newWalletService(t, repo, ledgerSvc, publisher)

	receipt, err := svc.SubmitWithdrawal(context.Background(), WithdrawalRequest{
		AgentID:       agent.ID,
		Amount:        "150.00",
		Method:        enums.PayoutMethodGcash,
		AccountName:   "Juan dela Cruz",
		AccountNumber: "09171234567",
	})
	if err != nil {
		t.Fatalf("SubmitWithdrawal: %v", err)
	}
	if receipt.AmountCents != 15000 {
		t.Fatalf("expected 15000 cents, got %d", receipt.AmountCents)
	}
	if len(publisher.payloads) != 1 {
		t.Fatalf("expected 1 published payload, got %d", len(publisher.payloads))
	}
	var event map[string]any
	if err := json.Unmarshal(publisher.payloads[0], &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if event["method"] != "gcash" {
		t.Fatalf("expected gcash method in payload, got %v", event["method"])
	}
	if event["reference_id"] != receipt.ReferenceID.String() {
		t.Fatalf("payload reference %v does not match receipt %s", event["reference_id"], receipt.ReferenceID)
	}
}

func TestSubmitWithdrawalValidation(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		// Commission available: 20000 cents.
		"AGENT7": attributed(200000),
	}}
	svc := newWalletService(t, repo, ledgerSvc, &fakePublisher{})

	valid := WithdrawalRequest{
		AgentID:       agent.ID,
		Amount:        "150.00",
		Method:        enums.PayoutMethodBank,
		AccountName:   "Juan dela Cruz",
		AccountNumber: "0012345678",
	}

	cases := []struct {
		name   string
		mutate func(*WithdrawalRequest)
	}{
		{"below minimum", func(r *WithdrawalRequest) { r.Amount = "50.00" }},
		{"exceeds available", func(r *WithdrawalRequest) { r.Amount = "200.01" }},
		{"garbage amount", func(r *WithdrawalRequest) { r.Amount = "lots" }},
		{"account name too short", func(r *WithdrawalRequest) { r.AccountName = "J" }},
		{"account number too short", func(r *WithdrawalRequest) { r.AccountNumber = "123" }},
		{"unknown method", func(r *WithdrawalRequest) { r.Method = "paypal" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := svc.SubmitWithdrawal(context.Background(), req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			appErr := pkgerrors.As(err)
			if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}

	// Exactly the minimum and exactly the available balance pass.
	for _, amount := range []string{"100.00", "200.00"} {
		req := valid
		req.Amount = amount
		if _, err := svc.SubmitWithdrawal(context.Background(), req); err != nil {
			t.Fatalf("amount %s should be accepted: %v", amount, err)
		}
	}
}

func TestSubmitWithdrawalRejectsZeroAmountAtZeroMinimum(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": attributed(200000),
	}}
	svc, err := NewService(ServiceParams{
		Agents:    repo,
		Ledger:    ledgerSvc,
		Publisher: &fakePublisher{},
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.WalletConfig{
			DefaultRateBps: DefaultRateBps,
			MinWithdrawal:  "0.00",
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.SubmitWithdrawal(context.Background(), WithdrawalRequest{
		AgentID:       agent.ID,
		Amount:        "0.00",
		Method:        enums.PayoutMethodGcash,
		AccountName:   "Juan dela Cruz",
		AccountNumber: "0012345678",
	})
	if err == nil {
		t.Fatal("expected a zero amount to be rejected even with no configured minimum")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestSubmitWithdrawalAggregatesViolations(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": attributed(200000),
	}}
	svc := newWalletService(t, repo, ledgerSvc, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), WithdrawalRequest{
		AgentID:       agent.ID,
		Amount:        "1.00",
		Method:        "cheque",
		AccountName:   "",
		AccountNumber: "12",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %v", err)
	}
	details, ok := appErr.Details().([]string)
	if !ok {
		t.Fatalf("expected string details, got %T", appErr.Details())
	}
	if len(details) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(details), details)
	}
}

func TestSubmitWithdrawalPublisherFailure(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), ReferralCode: "AGENT7", IsActive: true}
	repo := newFakeAgents(agent)
	ledgerSvc := &fakeLedgerService{byCode: map[string]ledger.AttributedResult{
		"AGENT7": attributed(600000),
	}}
	publisher := &fakePublisher{err: errors.New("topic unavailable")}
	svc := newWalletService(t, repo, ledgerSvc, publisher)

	_, err := svc.SubmitWithdrawal(context.Background(), WithdrawalRequest{
		AgentID:       agent.ID,
		Amount:        "150.00",
		Method:        enums.PayoutMethodGcash,
		AccountName:   "Juan dela Cruz",
		AccountNumber: "09171234567",
	})
	if err == nil {
		t.Fatal("expected error when the payout publisher fails")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency code, got %v", err)
	}
}
