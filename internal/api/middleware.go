package api

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SIMPLYBOYS/sage_mining/internal/auth"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

const claimsKey = "claims"

var (
	errMissingToken = &errors.UnauthorizedError{Message: "Invalid or missing authentication token"}
	errExpiredToken = &errors.UnauthorizedError{ErrCode: "TOKEN_EXPIRED", Message: "Authentication token has expired"}
	errAdminOnly    = &errors.ForbiddenError{Message: "Admin access required"}
	errUserOnly     = &errors.ForbiddenError{Message: "User access required"}
)

// ErrorMiddleware renders the last handler error as {success:false, error:{code,message}}.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status, code, message := describe(err)
		if status >= http.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   gin.H{"code": code, "message": message},
		})
		c.Abort()
	}
}

// describe maps an error to its HTTP status, API code and client message.
func describe(err error) (int, string, string) {
	var dbErr *errors.DatabaseError
	if stderrors.As(err, &dbErr) {
		return http.StatusInternalServerError, "SERVER_ERROR", "Internal server error"
	}

	var coded errors.Coded
	if !stderrors.As(err, &coded) {
		return http.StatusInternalServerError, "SERVER_ERROR", "Internal server error"
	}

	message := coded.Error()
	switch e := coded.(type) {
	case *errors.ValidationError:
		message = e.Message
	case *errors.UnauthorizedError:
		message = e.Message
	case *errors.ForbiddenError:
		message = e.Message
	case *errors.ConflictError:
		message = e.Message
	case *errors.NotFoundError:
		message = "Not found"
		if e.Resource != "" {
			message = strings.ToUpper(e.Resource[:1]) + e.Resource[1:] + " not found"
		}
	case *errors.InsufficientBalanceError:
		message = "Insufficient balance"
	case *errors.APIError:
		message = e.Message
	}
	return coded.Status(), coded.Code(), message
}

// Recovery turns a panic into a SERVER_ERROR response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": "SERVER_ERROR", "message": "Internal server error"},
		})
	})
}

func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// fail records err for ErrorMiddleware and stops the chain.
func fail(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}

// authenticate parses the bearer token and checks its role. An empty role admits any.
func authenticate(am *auth.Manager, token string, role string) (*auth.Claims, error) {
	if token == "" {
		return nil, errMissingToken
	}
	claims, err := am.ParseToken(token)
	if err != nil {
		if auth.IsExpired(err) {
			return nil, errExpiredToken
		}
		return nil, errMissingToken
	}
	if role != "" && claims.Role != role {
		if role == auth.RoleAdmin {
			return nil, errAdminOnly
		}
		return nil, errUserOnly
	}
	return claims, nil
}

func requireRole(am *auth.Manager, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := auth.TokenFromRequest(c.Request)
		claims, err := authenticate(am, token, role)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireUser admits requests carrying a valid user token.
func RequireUser(am *auth.Manager) gin.HandlerFunc {
	return requireRole(am, auth.RoleUser)
}

// RequireAdmin admits requests carrying a valid admin token. User tokens get 403.
func RequireAdmin(am *auth.Manager) gin.HandlerFunc {
	return requireRole(am, auth.RoleAdmin)
}

// RequireAny admits either role.
func RequireAny(am *auth.Manager) gin.HandlerFunc {
	return requireRole(am, "")
}

// currentUserID returns the subject of the authenticated request.
func currentUserID(c *gin.Context) string {
	if v, ok := c.Get(claimsKey); ok {
		return v.(*auth.Claims).Subject
	}
	return ""
}
