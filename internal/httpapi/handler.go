package httpapi

import (
	"net/http"
	"sort"

	"rewardengine/pkg/db/pagination"
	"rewardengine/pkg/errutil"
	"rewardengine/services/catalog"
	"rewardengine/services/ledger"
	"rewardengine/services/session"
	"rewardengine/services/streak"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// Handler exposes the engine to the UI layer. The UI owns no timing
// authority: it only polls, signals, and claims.
type Handler struct {
	catalog  *catalog.Catalog
	sessions *session.Service
	ledger   *ledger.Service
	streaks  *streak.Tracker
}

type HandlerParams struct {
	fx.In

	Catalog  *catalog.Catalog
	Sessions *session.Service
	Ledger   *ledger.Service
	Streaks  *streak.Tracker
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		catalog:  p.Catalog,
		sessions: p.Sessions,
		ledger:   p.Ledger,
		streaks:  p.Streaks,
	}
}

func RegisterRoutes(engine *gin.Engine, h *Handler) {
	v1 := engine.Group("/v1")

	v1.GET("/actions", h.ListActions)
	v1.POST("/sessions", h.OpenSession)
	v1.GET("/sessions/:id", h.PollSession)
	v1.POST("/sessions/:id/signal", h.ReportSignal)
	v1.POST("/sessions/:id/cancel", h.CancelSession)
	v1.POST("/sessions/:id/claim", h.Claim)

	v1.GET("/users/:id/balance", h.GetBalance)
	v1.GET("/users/:id/history", h.GetHistory)
	v1.GET("/users/:id/streak", h.GetStreak)
}

// ListActions describes the earn catalog so the UI can render the offer wall
// without hardcoding action types.
func (h *Handler) ListActions(c *gin.Context) {
	actions := h.catalog.Actions()
	sort.Slice(actions, func(i, j int) bool { return actions[i].Type < actions[j].Type })

	out := make([]gin.H, 0, len(actions))
	for _, ac := range actions {
		entry := gin.H{
			"action_type":          ac.Type,
			"mode":                 ac.Mode,
			"min_duration_seconds": int64(ac.MinDuration.Seconds()),
			"grace_window_seconds": int64(ac.GraceWindow.Seconds()),
			"daily_cap_count":      ac.DailyCapCount,
			"daily_cap_amount":     ac.DailyCapAmount,
			"requires_signal":      ac.RequiresSignal,
			"streak_eligible":      ac.StreakEligible,
		}
		if ac.Mode == catalog.ModeFixed {
			entry["amount"] = ac.Amount
		} else {
			entry["outcomes"] = ac.Outcomes
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"actions": out})
}

type openSessionRequest struct {
	UserID     string                 `json:"user_id" binding:"required"`
	ActionType string                 `json:"action_type" binding:"required"`
	Context    map[string]interface{} `json:"context"`
}

func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	sess, err := h.sessions.Open(c.Request.Context(), req.UserID, catalog.ActionType(req.ActionType), req.Context)
	if err != nil {
		h.fail(c, err)
		return
	}

	remaining := int64(sess.GatingDeadline.Sub(sess.CreatedAt).Seconds())
	c.JSON(http.StatusCreated, gin.H{
		"session_id":        sess.ID,
		"state":             sess.State,
		"seconds_remaining": remaining,
		"gating_deadline":   sess.GatingDeadline,
	})
}

func (h *Handler) PollSession(c *gin.Context) {
	state, remaining, err := h.sessions.Poll(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":             state,
		"seconds_remaining": remaining,
	})
}

type signalRequest struct {
	Payload map[string]interface{} `json:"payload"`
}

func (h *Handler) ReportSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.sessions.Signal(c.Request.Context(), c.Param("id"), req.Payload); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (h *Handler) CancelSession(c *gin.Context) {
	if err := h.sessions.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Claim(c *gin.Context) {
	result, err := h.sessions.Claim(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetBalance(c *gin.Context) {
	state, err := h.ledger.BalanceOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":         state.Balance,
		"lifetime_earned": state.LifetimeEarned,
	})
}

func (h *Handler) GetHistory(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		h.fail(c, errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
		return
	}

	grants, info, err := h.ledger.History(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"grants":    grants,
		"page_info": info,
	})
}

func (h *Handler) GetStreak(c *gin.Context) {
	state, err := h.streaks.StreakOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"current":           state.Current,
		"longest":           state.Longest,
		"last_credited_day": state.LastCreditedDay,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
