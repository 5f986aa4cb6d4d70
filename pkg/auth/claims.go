package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rafflebox/rafflebox-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	AgentID uuid.UUID
	Role    enums.ActorRole
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	AgentID uuid.UUID       `json:"agent_id"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
