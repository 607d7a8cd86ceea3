// internal/handlers/battery.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"cortexa-go/internal/assessment"
	"cortexa-go/internal/battery"
	"cortexa-go/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionRunKey is the cookie session key holding the caller's active run.
const SessionRunKey = "runID"

type BatteryHandler struct {
	log      *zap.Logger
	registry *services.Registry
	upgrader websocket.Upgrader
}

func NewBatteryHandler(log *zap.Logger, registry *services.Registry) *BatteryHandler {
	return &BatteryHandler{
		log:      log,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

type createRequest struct {
	UserID *int64 `json:"userId"`
}

// Create starts a run and makes it the session's active run.
func (h *BatteryHandler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, errInvalidBody)
		return
	}

	run, err := h.registry.Create(req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(SessionRunKey, run.ID)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save session", zap.Error(err))
	}

	var snap assessment.Snapshot
	if err := run.Do(func(o *assessment.Orchestrator) error {
		snap = o.Snapshot()
		return nil
	}); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": run.ID, "snapshot": snap})
}

// Current returns the snapshot of the session's active run.
func (h *BatteryHandler) Current(c *gin.Context) {
	id, ok := sessions.Default(c).Get(SessionRunKey).(string)
	if !ok {
		h.fail(c, services.ErrRunNotFound)
		return
	}
	h.show(c, id)
}

func (h *BatteryHandler) Show(c *gin.Context) {
	h.show(c, c.Param("id"))
}

func (h *BatteryHandler) show(c *gin.Context, id string) {
	run, err := h.registry.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	var snap assessment.Snapshot
	if err := run.Do(func(o *assessment.Orchestrator) error {
		snap = o.Snapshot()
		return nil
	}); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": run.ID, "snapshot": snap})
}

// Delete tears the run down.
func (h *BatteryHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Remove(id); err != nil {
		h.fail(c, err)
		return
	}
	session := sessions.Default(c)
	if current, _ := session.Get(SessionRunKey).(string); current == id {
		session.Delete(SessionRunKey)
		_ = session.Save()
	}
	c.Status(http.StatusNoContent)
}

// act runs fn on the run's loop and answers with whatever fn adds plus a fresh snapshot.
func (h *BatteryHandler) act(c *gin.Context, fn func(o *assessment.Orchestrator) (gin.H, error)) {
	run, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var (
		body gin.H
		snap assessment.Snapshot
	)
	err = run.Do(func(o *assessment.Orchestrator) error {
		extra, err := fn(o)
		if err != nil {
			return err
		}
		body = extra
		snap = o.Snapshot()
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if body == nil {
		body = gin.H{}
	}
	body["id"] = run.ID
	body["snapshot"] = snap
	c.JSON(http.StatusOK, body)
}

func (h *BatteryHandler) Back(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		return nil, o.Back()
	})
}

func (h *BatteryHandler) Reset(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		o.Reset()
		return nil, nil
	})
}

func (h *BatteryHandler) Retry(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		return nil, o.Retry()
	})
}

// Result reports the scoring outcome. 202 while the run is still going or submitting.
func (h *BatteryHandler) Result(c *gin.Context) {
	run, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var (
		status assessment.Status
		result *assessment.Result
	)
	err = run.Do(func(o *assessment.Orchestrator) error {
		status = o.Status()
		result = o.Result()
		switch status {
		case assessment.StatusIncomplete, assessment.StatusInvalid:
			return o.Err()
		case assessment.StatusFailed:
			return &submissionError{err: o.Err()}
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if status != assessment.StatusSubmitted {
		c.JSON(http.StatusAccepted, gin.H{"status": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "result": result})
}

func (h *BatteryHandler) SpeechStart(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		s, err := o.Speech()
		if err != nil {
			return nil, err
		}
		return nil, s.Start()
	})
}

func (h *BatteryHandler) SpeechStop(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		s, err := o.Speech()
		if err != nil {
			return nil, err
		}
		return nil, s.Stop()
	})
}

func (h *BatteryHandler) SpeechContinue(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		s, err := o.Speech()
		if err != nil {
			return nil, err
		}
		return nil, s.Continue()
	})
}

type recallRequest struct {
	Text string `json:"text"`
}

func (h *BatteryHandler) MemoryRecall(c *gin.Context) {
	var req recallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errInvalidBody)
		return
	}
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		m, err := o.Memory()
		if err != nil {
			return nil, err
		}
		return nil, m.SubmitRecall(req.Text)
	})
}

func (h *BatteryHandler) MemoryContinue(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		m, err := o.Memory()
		if err != nil {
			return nil, err
		}
		return nil, m.Continue()
	})
}

// ReactionClick records a click. A click before the stimulus is counted and reported,
// not treated as a failure.
func (h *BatteryHandler) ReactionClick(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		r, err := o.Reaction()
		if err != nil {
			return nil, err
		}
		ms, err := r.Click()
		if errors.Is(err, battery.ErrPrematureClick) {
			return gin.H{"premature": true, "message": err.Error()}, nil
		}
		if err != nil {
			return nil, err
		}
		return gin.H{"reactionMs": ms}, nil
	})
}

type toggleRequest struct {
	Value *int `json:"value"`
}

func (h *BatteryHandler) PuzzleToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		h.fail(c, errInvalidBody)
		return
	}
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		p, err := o.Puzzle()
		if err != nil {
			return nil, err
		}
		return nil, p.Toggle(*req.Value)
	})
}

func (h *BatteryHandler) PuzzleClear(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		p, err := o.Puzzle()
		if err != nil {
			return nil, err
		}
		return nil, p.ClearSelection()
	})
}

func (h *BatteryHandler) PuzzleCheck(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		p, err := o.Puzzle()
		if err != nil {
			return nil, err
		}
		correct, err := p.Check()
		if err != nil {
			return nil, err
		}
		return gin.H{"correct": correct}, nil
	})
}

func (h *BatteryHandler) PuzzleContinue(c *gin.Context) {
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		p, err := o.Puzzle()
		if err != nil {
			return nil, err
		}
		return nil, p.Continue()
	})
}

func (h *BatteryHandler) Lifestyle(c *gin.Context) {
	var answers battery.LifestyleAnswers
	if err := c.ShouldBindJSON(&answers); err != nil {
		h.fail(c, errInvalidBody)
		return
	}
	h.act(c, func(o *assessment.Orchestrator) (gin.H, error) {
		f, err := o.Lifestyle()
		if err != nil {
			return nil, err
		}
		return nil, f.Submit(answers)
	})
}

// Connect upgrades to the WebSocket the browser uses to run recognition and level
// monitoring for this run. It blocks until the socket closes.
func (h *BatteryHandler) Connect(c *gin.Context) {
	run, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("handle", run.ID), zap.Error(err))
		return
	}
	run.Bridge.Serve(conn)
}
