// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// ScopeAll grants every scope.
const ScopeAll = "*"

// Identity is the authenticated caller: a sales rep or an upstream
// integration acting through a service token.
type Identity interface {
	// ActorRef is recorded on every ledger entry the caller produces.
	ActorRef() string
	Scopes() []string
	HasScope(scope string) bool
	IsAuthenticated() bool
}

type identity struct {
	actorRef string
	scopes   []string
}

func (i *identity) ActorRef() string { return i.actorRef }

func (i *identity) Scopes() []string { return i.scopes }

func (i *identity) HasScope(scope string) bool {
	return slices.Contains(i.scopes, scope) || slices.Contains(i.scopes, ScopeAll)
}

func (i *identity) IsAuthenticated() bool { return i.actorRef != "" }

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if no actor is present.
func GetIdentity(c *gin.Context) Identity {
	actor := c.GetString(ContextActorKey)
	if actor == "" {
		return &identity{}
	}
	var scopes []string
	if raw, ok := c.Get(ContextScopesKey); ok {
		scopes, _ = raw.([]string)
	}
	return &identity{actorRef: actor, scopes: scopes}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the caller is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}

// RequireScope rejects callers whose token does not carry scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		if !id.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Details: gin.H{"scope": scope}})
			return
		}
		c.Next()
	}
}
