package httpapi

import (
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// rolePrecedence orders session roles; the first one present wins.
var rolePrecedence = []booking.Role{booking.RoleAdmin, booking.RoleInstructor, booking.RoleStudent}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// roleFromClaims maps session roles onto a booking role, defaulting to student.
func roleFromClaims(roles []string) booking.Role {
	granted := make(map[booking.Role]struct{}, len(roles))
	for _, raw := range roles {
		if role, err := booking.ParseRole(strings.TrimSpace(raw)); err == nil {
			granted[role] = struct{}{}
		}
	}
	for _, role := range rolePrecedence {
		if _, ok := granted[role]; ok {
			return role
		}
	}
	return booking.RoleStudent
}

// resolveActor turns validated session claims into a booking actor and records the account.
func (handler *httpHandler) resolveActor(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	actor, err := booking.NewActor(claims.GetUserID(), roleFromClaims(claims.GetUserRoles()).String(), claims.GetUserEmail())
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session subject"))
		return
	}
	if _, err := handler.service.EnsureAccount(ctx.Request.Context(), actor); err != nil {
		handler.logger.Error("account sync failed", zap.String("account_id", actor.AccountID.String()), zap.Error(err))
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("internal_error", "account unavailable"))
		return
	}
	ctx.Set(actorContextKey, actor)
	ctx.Next()
}

func getActor(ctx *gin.Context) (booking.Actor, bool) {
	value, ok := ctx.Get(actorContextKey)
	if !ok {
		return booking.Actor{}, false
	}
	actor, ok := value.(booking.Actor)
	return actor, ok
}
