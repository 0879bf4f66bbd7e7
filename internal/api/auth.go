package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/leadforge-service/internal/model"
)

const actorKey = "actor"

var errMissingToken = errors.New("authorization header is missing")

// Claims is the session token issued by the identity provider.
type Claims struct {
	Role      model.Role `json:"role"`
	CompanyID string     `json:"company_id"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 session tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Parse validates a token and returns the actor it names.
func (a *Authenticator) Parse(tokenString string) (*model.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.New("invalid subject claim")
	}
	companyID, err := uuid.Parse(claims.CompanyID)
	if err != nil {
		return nil, errors.New("invalid company_id claim")
	}
	switch claims.Role {
	case model.RoleAdmin, model.RoleManager, model.RoleAgent:
	default:
		return nil, errors.New("invalid role claim")
	}
	return &model.Actor{UserID: userID, CompanyID: companyID, Role: claims.Role}, nil
}

// Issue signs a token for actor. Used by tests and local tooling; production
// tokens come from the identity provider.
func (a *Authenticator) Issue(actor *model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:      actor.Role,
		CompanyID: actor.CompanyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) fromHeader(c *gin.Context) (*model.Actor, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, errMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("invalid authorization header format")
	}
	return a.Parse(strings.TrimSpace(parts[1]))
}

// RequireActor rejects requests without a valid session token.
func (a *Authenticator) RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := a.fromHeader(c)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Rejected unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// OptionalActor attaches the actor when a token is sent. A token that is
// present but invalid is still rejected.
func (a *Authenticator) OptionalActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := a.fromHeader(c)
		if errors.Is(err, errMissingToken) {
			c.Next()
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *model.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*model.Actor)
	return actor
}
