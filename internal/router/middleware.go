package router

import (
	"cortexa-go/internal/handlers"
	"cortexa-go/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RunLoader drops a session's run id once the run is gone (reaped, deleted or lost on
// restart), so the session does not keep pointing at nothing.
func RunLoader(registry *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(handlers.SessionRunKey).(string)
		if !ok {
			c.Next()
			return
		}
		if _, err := registry.Get(id); err != nil {
			session.Delete(handlers.SessionRunKey)
			_ = session.Save()
		}
		c.Next()
	}
}
