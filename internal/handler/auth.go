package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCashier    Role = "cashier"
	RoleSupervisor Role = "supervisor"
	RoleClient     Role = "client"
)

func (r Role) valid() bool {
	return r == RoleCashier || r == RoleSupervisor || r == RoleClient
}

func (r Role) Staff() bool {
	return r == RoleCashier || r == RoleSupervisor
}

// Viewer is the authenticated caller: a staff console or a client portal.
type Viewer struct {
	Subject string
	Role    Role
}

type viewerClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

const viewerKey = "viewer"

// SignToken issues an HS256 token for v.
func SignToken(secret []byte, v Viewer, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := viewerClaims{
		Role: v.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   v.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Authenticate resolves the viewer from a bearer token. Browsers' EventSource
// cannot set headers, so access_token in the query is accepted as well.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("access_token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token format")
				return
			}
			raw = parts[1]
		}
		if raw == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
			return
		}

		claims := &viewerClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		if claims.Subject == "" || !claims.Role.valid() {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "token lacks subject or role")
			return
		}

		c.Set(viewerKey, Viewer{Subject: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := viewerFrom(c)
		for _, r := range roles {
			if v.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "FORBIDDEN", "role not allowed")
	}
}

func viewerFrom(c *gin.Context) Viewer {
	v, _ := c.Get(viewerKey)
	viewer, _ := v.(Viewer)
	return viewer
}
