package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rafflebox/rafflebox-backend/internal/agents"
	"github.com/rafflebox/rafflebox-backend/internal/ledger"
	"github.com/rafflebox/rafflebox-backend/pkg/config"
	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/metrics"
	"github.com/rafflebox/rafflebox-backend/pkg/money"
	"github.com/rafflebox/rafflebox-backend/pkg/pagination"
	"github.com/rafflebox/rafflebox-backend/pkg/redis"
)

const (
	scopeOne = "one"
	scopeAll = "all"

	defaultRecomputeBatchSize = 200
)

// ErrAgentNotFound is returned when the agent does not exist.
var ErrAgentNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")

// EventPublisher hands accepted withdrawals to the external payout workflow.
type EventPublisher interface {
	PublishPayoutRequest(ctx context.Context, payload []byte) error
}

// SkippedAgent records an agent a batch run left untouched.
type SkippedAgent struct {
	AgentID uuid.UUID `json:"agent_id"`
	Reason  string    `json:"reason"`
}

// BatchResult reports a full-fleet recompute. A run with Errors set still
// persisted every balance it could.
type BatchResult struct {
	UpdatedCount int            `json:"updated_count"`
	Skipped      []SkippedAgent `json:"skipped,omitempty"`
	Errors       error          `json:"-"`
	FailedCount  int            `json:"failed_count"`
}

// Service is the wallet core: commission summaries, balance recomputation,
// and withdrawal intake.
type Service interface {
	Summary(ctx context.Context, agentID uuid.UUID, refresh bool) (Summary, error)
	AttributedTransactions(ctx context.Context, agentID uuid.UUID, page pagination.Params) (TransactionPage, error)
	RecomputeOne(ctx context.Context, agentID uuid.UUID) (Summary, error)
	RecomputeAll(ctx context.Context) (BatchResult, error)
	SubmitWithdrawal(ctx context.Context, req WithdrawalRequest) (WithdrawalReceipt, error)
}

// ServiceParams carries the dependencies for NewService. Cache, Publisher and
// Metrics are optional; the service degrades to uncached, log-only behavior
// without them.
type ServiceParams struct {
	Agents    agents.Repository
	Ledger    ledger.Service
	Cache     *redis.Client
	Publisher EventPublisher
	Metrics   *metrics.WalletMetrics
	Logger    *logger.Logger
	Config    config.WalletConfig
}

func (p ServiceParams) validate() error {
	if p.Agents == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "agent repository is required")
	}
	if p.Ledger == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "ledger service is required")
	}
	if p.Logger == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	return nil
}

type service struct {
	agents    agents.Repository
	ledger    ledger.Service
	cache     *redis.Client
	publisher EventPublisher
	metrics   *metrics.WalletMetrics
	logg      *logger.Logger
	cfg       config.WalletConfig
}

// NewService builds the wallet service.
func NewService(params ServiceParams) (Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.Config.DefaultRateBps <= 0 {
		params.Config.DefaultRateBps = DefaultRateBps
	}
	return &service{
		agents:    params.Agents,
		ledger:    params.Ledger,
		cache:     params.Cache,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       params.Config,
	}, nil
}

// Summary returns the agent's commission summary, from cache when fresh
// enough. refresh forces a recompute from the ledger.
func (s *service) Summary(ctx context.Context, agentID uuid.UUID, refresh bool) (Summary, error) {
	if !refresh {
		if summary, ok := s.cachedSummary(ctx, agentID); ok {
			return summary, nil
		}
	}
	_, summary, err := s.compute(ctx, agentID)
	if err != nil {
		return Summary{}, err
	}
	s.storeSummary(ctx, summary)
	return summary, nil
}

// TransactionPage is one page of attributed deposits, newest first.
type TransactionPage struct {
	Transactions []models.CashInTransaction `json:"transactions"`
	Skipped      []ledger.SkippedStrategy   `json:"skipped,omitempty"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

// AttributedTransactions lists the deposits attributed to the agent's code,
// newest first, sliced by cursor pagination.
func (s *service) AttributedTransactions(ctx context.Context, agentID uuid.UUID, page pagination.Params) (TransactionPage, error) {
	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return TransactionPage{}, err
	}
	if agent.ReferralCode == "" {
		return TransactionPage{}, nil
	}

	cursor, err := pagination.Parse(page.Cursor)
	if err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pagination cursor")
	}

	result, err := s.ledger.Attributed(ctx, agent.ReferralCode)
	if err != nil {
		return TransactionPage{}, err
	}

	txns := result.Transactions
	if cursor != nil {
		for len(txns) > 0 && !cursor.After(txns[0].CreatedAt, txns[0].ID) {
			txns = txns[1:]
		}
	}

	out := TransactionPage{Skipped: result.Skipped}
	limit := pagination.NormalizeLimit(page.Limit)
	if len(txns) > limit {
		out.Transactions = txns[:limit]
		last := out.Transactions[limit-1]
		out.NextCursor = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	} else {
		out.Transactions = txns
	}
	return out, nil
}

// RecomputeOne re-derives one agent's commission from the ledger and
// overwrites the persisted balance. Agents without a referral code are a
// no-op: the zero summary comes back and the stored balance is untouched.
func (s *service) RecomputeOne(ctx context.Context, agentID uuid.UUID) (Summary, error) {
	started := time.Now()
	summary, err := s.recomputeOne(ctx, agentID)
	s.metrics.ObserveRecomputeDuration(scopeOne, time.Since(started))
	if err != nil {
		s.metrics.IncRecomputeFailure(scopeOne)
		return Summary{}, err
	}
	s.metrics.IncRecomputeSuccess(scopeOne)
	return summary, nil
}

func (s *service) recomputeOne(ctx context.Context, agentID uuid.UUID) (Summary, error) {
	agent, summary, err := s.compute(ctx, agentID)
	if err != nil {
		return Summary{}, err
	}
	if agent.ReferralCode == "" {
		return summary, nil
	}
	if err := s.agents.UpdateBalance(ctx, agent.ID, summary.CommissionCents); err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting balance")
	}
	s.storeSummary(ctx, summary)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"agent_id":         agent.ID.String(),
		"commission_cents": summary.CommissionCents,
	})
	s.logg.Info(logCtx, "agent balance recomputed")
	return summary, nil
}

// RecomputeAll re-derives every active agent's balance. One agent failing
// never stops the run; failures are collected and reported together.
func (s *service) RecomputeAll(ctx context.Context) (BatchResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveRecomputeDuration(scopeAll, time.Since(started))
	}()

	batchSize := s.cfg.RecomputeBatchSize
	if batchSize <= 0 {
		batchSize = defaultRecomputeBatchSize
	}

	var result BatchResult
	err := s.agents.ForEachActiveBatch(ctx, batchSize, func(batch []models.Agent) error {
		for _, agent := range batch {
			if agent.ReferralCode == "" {
				result.Skipped = append(result.Skipped, SkippedAgent{
					AgentID: agent.ID,
					Reason:  "no referral code",
				})
				continue
			}
			if _, err := s.recomputeOne(ctx, agent.ID); err != nil {
				result.FailedCount++
				result.Errors = multierr.Append(result.Errors, &AgentError{AgentID: agent.ID, Err: err})
				s.logg.Error(s.logg.WithAgentID(ctx, agent.ID.String()), "agent recompute failed", err)
				continue
			}
			result.UpdatedCount++
		}
		return ctx.Err()
	})
	if err != nil {
		s.metrics.IncRecomputeFailure(scopeAll)
		return BatchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "iterating active agents")
	}

	if result.FailedCount > 0 {
		s.metrics.IncRecomputeFailure(scopeAll)
	} else {
		s.metrics.IncRecomputeSuccess(scopeAll)
	}
	return result, nil
}

// SubmitWithdrawal validates a payout request against the agent's freshly
// computed commission and forwards it to the payout workflow.
func (s *service) SubmitWithdrawal(ctx context.Context, req WithdrawalRequest) (WithdrawalReceipt, error) {
	_, summary, err := s.compute(ctx, req.AgentID)
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	minCents := money.ToMinorUnits(s.cfg.MinWithdrawalAmount())
	amountCents, err := req.validate(minCents, summary.CommissionCents)
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	receipt := WithdrawalReceipt{
		ReferenceID: uuid.New(),
		AgentID:     req.AgentID,
		AmountCents: amountCents,
		Method:      req.Method,
		SubmittedAt: time.Now().UTC(),
	}

	if s.publisher != nil {
		payload, err := json.Marshal(payoutEvent{
			ReferenceID:   receipt.ReferenceID,
			AgentID:       req.AgentID,
			AmountCents:   amountCents,
			Method:        req.Method.String(),
			AccountName:   req.AccountName,
			AccountNumber: req.AccountNumber,
			SubmittedAt:   receipt.SubmittedAt,
		})
		if err != nil {
			return WithdrawalReceipt{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding payout event")
		}
		if err := s.publisher.PublishPayoutRequest(ctx, payload); err != nil {
			return WithdrawalReceipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "forwarding payout request")
		}
	}

	s.metrics.IncWithdrawalSubmission(req.Method.String())
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"agent_id":     req.AgentID.String(),
		"reference_id": receipt.ReferenceID.String(),
		"amount_cents": amountCents,
		"method":       req.Method.String(),
	})
	s.logg.Info(logCtx, "withdrawal request accepted")
	return receipt, nil
}

// AgentError ties a batch failure to the agent it happened on.
type AgentError struct {
	AgentID uuid.UUID
	Err     error
}

func (e *AgentError) Error() string {
	return "agent " + e.AgentID.String() + ": " + e.Err.Error()
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

type payoutEvent struct {
	ReferenceID   uuid.UUID `json:"reference_id"`
	AgentID       uuid.UUID `json:"agent_id"`
	AmountCents   int64     `json:"amount_cents"`
	Method        string    `json:"method"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

func (s *service) findAgent(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	agent, err := s.agents.FindByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading agent")
	}
	return agent, nil
}

// compute derives a fresh summary straight from the ledger.
func (s *service) compute(ctx context.Context, agentID uuid.UUID) (*models.Agent, Summary, error) {
	agent, err := s.findAgent(ctx, agentID)
	if err != nil {
		return nil, Summary{}, err
	}
	rate := RateBpsFor(agent, s.cfg.DefaultRateBps)
	if agent.ReferralCode == "" {
		return agent, Summarize(agent, ledger.AttributedResult{}, rate), nil
	}
	result, err := s.ledger.Attributed(ctx, agent.ReferralCode)
	if err != nil {
		return nil, Summary{}, err
	}
	return agent, Summarize(agent, result, rate), nil
}

func (s *service) cachedSummary(ctx context.Context, agentID uuid.UUID) (Summary, bool) {
	if s.cache == nil {
		return Summary{}, false
	}
	raw, err := s.cache.Get(ctx, s.cache.SummaryKey(agentID.String()))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logg.Warn(s.logg.WithAgentID(ctx, agentID.String()), "summary cache read failed")
		}
		return Summary{}, false
	}
	var summary Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return Summary{}, false
	}
	return summary, true
}

func (s *service) storeSummary(ctx context.Context, summary Summary) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	key := s.cache.SummaryKey(summary.AgentID.String())
	if err := s.cache.Set(ctx, key, string(payload), s.cfg.SummaryCacheTTL); err != nil {
		s.logg.Warn(s.logg.WithAgentID(ctx, summary.AgentID.String()), "summary cache write failed")
	}
}
