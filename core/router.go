package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, authService *AuthService, users *UserResource, tokens TokenAuthenticator, status *StatusService) *gin.Engine {
	r := gin.New()

	// Global middleware: recovery -> request log -> origin/CORS
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(OriginRefererMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		st := status.Collect(c.Request.Context())
		if !st.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": st.Database, "redis": st.Redis})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" form:"username" binding:"required"`
			Password string `json:"password" form:"password" binding:"required"`
		}
		if err := bindRequest(c, &req); err != nil {
			respond(c, bindErrorEnvelope(err, "Invalid request body"))
			return
		}

		res, err := authService.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				respond(c, fail(http.StatusForbidden, "Login failed, incorrect username or password."))
				return
			}
			respond(c, internalError(err))
			return
		}
		respond(c, ok(http.StatusOK, "Login successfull.", res, nil))
	})

	authed := r.Group("/", BearerAuth(tokens))
	{
		authed.POST("/logout", func(c *gin.Context) {
			p, _ := currentPrincipal(c)
			if err := authService.Logout(c.Request.Context(), p); err != nil {
				respond(c, internalError(err))
				return
			}
			respond(c, ok(http.StatusOK, "Logout successfull.", nil, nil))
		})

		authed.GET("/user", func(c *gin.Context) {
			p, _ := currentPrincipal(c)
			var params ListParams
			if err := bindQuery(c, &params); err != nil {
				respond(c, bindErrorEnvelope(err, "Invalid query parameters"))
				return
			}
			respond(c, users.List(c.Request.Context(), p, params))
		})

		authed.GET("/user/:id", func(c *gin.Context) {
			p, _ := currentPrincipal(c)
			respond(c, users.Get(c.Request.Context(), p, c.Param("id")))
		})

		authed.POST("/user", func(c *gin.Context) {
			p, _ := currentPrincipal(c)
			if !p.IsAdmin() {
				respond(c, fail(http.StatusUnauthorized, msgNoAccess))
				return
			}
			var req CreateUserRequest
			if err := bindRequest(c, &req); err != nil {
				respond(c, bindErrorEnvelope(err, "Invalid request body"))
				return
			}
			respond(c, users.Create(c.Request.Context(), p, req))
		})

		authed.PUT("/user/:id", func(c *gin.Context) {
			p, _ := currentPrincipal(c)
			if !canTarget(p, c.Param("id")) {
				respond(c, fail(http.StatusUnauthorized, msgNoAccess))
				return
			}
			var req UpdateUserRequest
			if err := bindRequest(c, &req); err != nil {
				respond(c, bindErrorEnvelope(err, "Invalid request body"))
				return
			}
			respond(c, users.Update(c.Request.Context(), p, c.Param("id"), req))
		})

		authed.DELETE("/user/:id", func(c *gin.Context) {
			p, _ := currentPrincipal(c)
			respond(c, users.Delete(c.Request.Context(), p, c.Param("id")))
		})

		authed.GET("/system/status", AdminOnly(), func(c *gin.Context) {
			respond(c, ok(http.StatusOK, "Get data successfull", status.Collect(c.Request.Context()), nil))
		})
	}

	r.NoRoute(func(c *gin.Context) {
		respond(c, fail(http.StatusNotFound, "Not found"))
	})

	return r
}

// canTarget reports whether p may act on the user id in rawID.
func canTarget(p Principal, rawID string) bool {
	if p.IsAdmin() {
		return true
	}
	id, err := parseUserID(rawID)
	return err == nil && p.ID == id
}

func bindErrorEnvelope(err error, message string) Envelope {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return validationFailed(verr)
	}
	return fail(http.StatusBadRequest, message)
}
