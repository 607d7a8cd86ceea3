// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"cortexa-go/internal/config"
	"cortexa-go/internal/handlers"
	"cortexa-go/internal/services"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

const sessionName = "cortexa_session"

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "Too many new runs. Try again in " + time.Until(info.ResetTime).Round(time.Second).String() + ".",
	})
}

func Setup(log *zap.Logger, registry *services.Registry, conf config.ServerConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(conf.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400,
	})
	router.Use(sessions.Sessions(sessionName, store))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	router.Use(RunLoader(registry))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "runs": registry.Len()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	batteryHandler := handlers.NewBatteryHandler(log, registry)

	// Every run owns a goroutine, so creation is limited per client.
	limit := conf.CreateLimit
	if limit == 0 {
		limit = 10
	}
	limiter := ratelimit.RateLimiter(ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: limit,
	}), &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	api := router.Group("/api")
	api.Use(CSRFProtection())
	{
		api.GET("/csrf", CSRFToken)

		api.POST("/battery", limiter, batteryHandler.Create)
		api.GET("/battery/current", batteryHandler.Current)

		run := api.Group("/battery/:id")
		{
			run.GET("", batteryHandler.Show)
			run.DELETE("", batteryHandler.Delete)
			run.GET("/result", batteryHandler.Result)
			run.GET("/ws", batteryHandler.Connect)
			run.POST("/back", batteryHandler.Back)
			run.POST("/reset", batteryHandler.Reset)
			run.POST("/retry", batteryHandler.Retry)

			run.POST("/speech/start", batteryHandler.SpeechStart)
			run.POST("/speech/stop", batteryHandler.SpeechStop)
			run.POST("/speech/continue", batteryHandler.SpeechContinue)

			run.POST("/memory/recall", batteryHandler.MemoryRecall)
			run.POST("/memory/continue", batteryHandler.MemoryContinue)

			run.POST("/reaction/click", batteryHandler.ReactionClick)

			run.POST("/puzzle/toggle", batteryHandler.PuzzleToggle)
			run.POST("/puzzle/clear", batteryHandler.PuzzleClear)
			run.POST("/puzzle/check", batteryHandler.PuzzleCheck)
			run.POST("/puzzle/continue", batteryHandler.PuzzleContinue)

			run.POST("/lifestyle", batteryHandler.Lifestyle)
		}
	}

	return router
}
