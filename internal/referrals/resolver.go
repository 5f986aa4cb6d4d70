package referrals

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflebox/rafflebox-backend/internal/agents"
	"github.com/rafflebox/rafflebox-backend/internal/ledger"
	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
)

var (
	// ErrUnknownUser is returned when the end user does not exist.
	ErrUnknownUser = pkgerrors.New(pkgerrors.CodeNotFound, "end user not found")
	// ErrCodeNotFound is returned when no agent owns the referral code.
	ErrCodeNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "referral code not found")
	// ErrNoAttribution is returned when resolution exhausts every source.
	ErrNoAttribution = pkgerrors.New(pkgerrors.CodeNotFound, "user has no referral attribution")
)

// Resolver answers which referral code a user's deposits belong to.
//
// Attribution is first-write-wins. A user who already carries a code in any
// historical field keeps it forever; a supplied code only matters for users
// with no attribution at all, and is persisted the moment it is accepted.
type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, suppliedCode string) (string, error)
	ValidateCode(ctx context.Context, code string) (*models.Agent, error)
}

// ResolverParams carries the dependencies for NewResolver.
type ResolverParams struct {
	Users  Repository
	Agents agents.Repository
	Ledger ledger.Repository
	Logger *logger.Logger
}

func (p ResolverParams) validate() error {
	if p.Users == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "end-user repository is required")
	}
	if p.Agents == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "agent repository is required")
	}
	if p.Ledger == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "ledger repository is required")
	}
	if p.Logger == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	return nil
}

type resolver struct {
	users  Repository
	agents agents.Repository
	ledger ledger.Repository
	logg   *logger.Logger
}

// NewResolver builds the referral attribution resolver.
func NewResolver(params ResolverParams) (Resolver, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &resolver{
		users:  params.Users,
		agents: params.Agents,
		ledger: params.Ledger,
		logg:   params.Logger,
	}, nil
}

// Resolve returns the user's referral code, consulting the attribution
// sources oldest-commitment-first. A code found in any stored field wins
// over the supplied one, no matter what the caller sent.
func (r *resolver) Resolve(ctx context.Context, userID uuid.UUID, suppliedCode string) (string, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownUser
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading end user")
	}

	if code := strings.TrimSpace(structuredCode(user)); code != "" {
		return code, nil
	}
	if user.ReferralCode != nil {
		if code := strings.TrimSpace(*user.ReferralCode); code != "" {
			return code, nil
		}
	}

	code, err := r.earliestTransactionCode(ctx, userID)
	if err != nil {
		return "", err
	}
	if code != "" {
		r.persistAttribution(ctx, userID, code)
		return code, nil
	}

	suppliedCode = strings.TrimSpace(suppliedCode)
	if suppliedCode == "" {
		return "", ErrNoAttribution
	}
	agent, err := r.ValidateCode(ctx, suppliedCode)
	if err != nil {
		return "", err
	}
	r.persistAttribution(ctx, userID, agent.ReferralCode)
	return agent.ReferralCode, nil
}

// ValidateCode finds the agent owning a code, trying an exact match first and
// falling back to a case-insensitive one.
func (r *resolver) ValidateCode(ctx context.Context, code string) (*models.Agent, error) {
	agent, err := r.agents.FindByReferralCode(ctx, code)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "looking up referral code")
	}

	matches, err := r.agents.FindByReferralCodeFold(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "looking up referral code")
	}
	if len(matches) == 0 {
		return nil, ErrCodeNotFound
	}
	if len(matches) > 1 {
		logCtx := r.logg.WithReferralCode(ctx, code)
		r.logg.Warn(logCtx, "referral code matches multiple agents case-insensitively")
	}
	return &matches[0], nil
}

// earliestTransactionCode walks the user's approved deposits oldest first and
// returns the first attributed code it finds.
func (r *resolver) earliestTransactionCode(ctx context.Context, userID uuid.UUID) (string, error) {
	txns, err := r.ledger.ListApprovedByOwner(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user transactions")
	}
	for _, txn := range txns {
		if code := ledger.AttributedCode(txn); code != "" {
			return code, nil
		}
	}
	return "", nil
}

// persistAttribution records the resolved code on the user. Failure here does
// not fail resolution; the next call will resolve to the same code again.
func (r *resolver) persistAttribution(ctx context.Context, userID uuid.UUID, code string) {
	wrote, err := r.users.SetStructuredReferral(ctx, userID, code)
	if err != nil {
		logCtx := r.logg.WithReferralCode(ctx, code)
		r.logg.Error(logCtx, "persisting referral attribution failed", err)
		return
	}
	if wrote {
		r.logg.Info(r.logg.WithReferralCode(ctx, code), "referral attribution recorded")
	}
}
