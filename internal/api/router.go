package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter wires the lead endpoints. Staff endpoints require a session;
// application intake accepts anonymous applicants.
func NewRouter(h *Handler, auth *Authenticator, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || containsWildcard(cfg.AllowedOrigins) {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	leads := r.Group("/api/leads")
	{
		leads.POST("", auth.OptionalActor(), h.SubmitApplication)
		leads.POST("/check", h.CheckApplicant)
		leads.GET("/:id", auth.RequireActor(), h.GetLead)
		leads.PATCH("/:id", auth.RequireActor(), h.UpdateLead)
		leads.PATCH("/:id/funding", auth.RequireActor(), h.UpdateFunding)
	}
	r.GET("/api/reports", auth.RequireActor(), h.Report)

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
