package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/redis"
)

// Strategy names reported back to callers when a lookup is skipped.
const (
	StrategyLegacyColumn        = "legacy_column"
	StrategyMetadataReferral    = "metadata_referral_code"
	StrategyMetadataMisspelling = "metadata_referal_code"
)

// SkippedStrategy records a lookup that could not run against this store.
type SkippedStrategy struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// AttributedResult is the merged view of every transaction attributed to a
// referral code, whichever field carried the attribution.
type AttributedResult struct {
	Transactions []models.CashInTransaction `json:"transactions"`
	Skipped      []SkippedStrategy          `json:"skipped,omitempty"`
}

// TotalCents sums the attributed amounts.
func (r AttributedResult) TotalCents() int64 {
	var total int64
	for _, txn := range r.Transactions {
		total += txn.AmountCents
	}
	return total
}

// Service answers attribution queries across the historical shapes of the
// cash-in ledger.
type Service interface {
	Attributed(ctx context.Context, code string) (AttributedResult, error)
	Capabilities(ctx context.Context) Capabilities
}

// ServiceParams carries the dependencies for NewService. Cache is optional;
// without it the capability probe is only memoized in process.
type ServiceParams struct {
	Repo     Repository
	Cache    *redis.Client
	Logger   *logger.Logger
	ProbeTTL time.Duration
}

func (p ServiceParams) validate() error {
	if p.Repo == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "ledger repository is required")
	}
	if p.Logger == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	return nil
}

type service struct {
	repo     Repository
	cache    *redis.Client
	logg     *logger.Logger
	probeTTL time.Duration

	mu   sync.Mutex
	caps *Capabilities
}

// NewService builds the ledger query service.
func NewService(params ServiceParams) (Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	ttl := params.ProbeTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &service{
		repo:     params.Repo,
		cache:    params.Cache,
		logg:     params.Logger,
		probeTTL: ttl,
	}, nil
}

// Attributed runs the primary column query plus a best-effort metadata pass
// and merges the results. Only the primary query can fail the call; metadata
// lookups degrade into Skipped entries.
func (s *service) Attributed(ctx context.Context, code string) (AttributedResult, error) {
	caps := s.Capabilities(ctx)

	primary, err := s.repo.ListApprovedByColumns(ctx, code, caps.LegacyReferralColumn)
	if err != nil {
		return AttributedResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger attribution query failed")
	}

	result := AttributedResult{Transactions: primary}
	if !caps.LegacyReferralColumn {
		result.Skipped = append(result.Skipped, SkippedStrategy{
			Strategy: StrategyLegacyColumn,
			Reason:   "column does not exist",
		})
	}

	for _, strat := range []struct {
		name string
		key  string
	}{
		{StrategyMetadataReferral, "referral_code"},
		{StrategyMetadataMisspelling, "referal_code"},
	} {
		if !caps.MetadataColumn {
			result.Skipped = append(result.Skipped, SkippedStrategy{
				Strategy: strat.name,
				Reason:   "column does not exist",
			})
			continue
		}
		rows, err := s.repo.ListApprovedByMetadataKey(ctx, strat.key, code)
		if err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"strategy": strat.name,
				"error":    err.Error(),
			})
			s.logg.Warn(logCtx, "metadata attribution lookup skipped")
			result.Skipped = append(result.Skipped, SkippedStrategy{
				Strategy: strat.name,
				Reason:   err.Error(),
			})
			continue
		}
		result.Transactions = mergeTransactions(result.Transactions, rows)
	}

	sort.SliceStable(result.Transactions, func(i, j int) bool {
		a, b := result.Transactions[i], result.Transactions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return result, nil
}

// Capabilities returns the probed store shape, memoized in process and in
// the shared cache so restarts across a fleet do not re-probe constantly.
func (s *service) Capabilities(ctx context.Context) Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps != nil {
		return *s.caps
	}

	if caps, ok := s.cachedCapabilities(ctx); ok {
		s.caps = &caps
		return caps
	}

	caps, err := s.repo.Probe(ctx)
	if err != nil {
		// Do not memoize a failed probe; fall back to the columns every
		// deployment carries.
		s.logg.Error(ctx, "ledger capability probe failed", err)
		return Capabilities{}
	}
	s.caps = &caps
	s.storeCapabilities(ctx, caps)
	return caps
}

func (s *service) cachedCapabilities(ctx context.Context) (Capabilities, bool) {
	if s.cache == nil {
		return Capabilities{}, false
	}
	raw, err := s.cache.Get(ctx, s.cache.ProbeKey())
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ledger probe cache read failed")
		}
		return Capabilities{}, false
	}
	var caps Capabilities
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		return Capabilities{}, false
	}
	return caps, true
}

func (s *service) storeCapabilities(ctx context.Context, caps Capabilities) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(caps)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.ProbeKey(), string(payload), s.probeTTL); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ledger probe cache write failed")
	}
}

// mergeTransactions appends rows not already present, keyed by transaction id.
func mergeTransactions(base, extra []models.CashInTransaction) []models.CashInTransaction {
	seen := make(map[string]struct{}, len(base))
	for _, txn := range base {
		seen[txn.ID.String()] = struct{}{}
	}
	for _, txn := range extra {
		if _, ok := seen[txn.ID.String()]; ok {
			continue
		}
		seen[txn.ID.String()] = struct{}{}
		base = append(base, txn)
	}
	return base
}
