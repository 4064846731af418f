package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"leadengage/internal/entities"
	"leadengage/internal/infrastructure"
	"leadengage/internal/interfaces"
	"leadengage/internal/repository"
	"leadengage/internal/usecases"
)

type Handler struct {
	store        *usecases.ConversationStore
	orchestrator *usecases.ResponseOrchestrator
	adapters     map[entities.Channel]interfaces.ChannelAdapter
	ruleRepo     *repository.RuleRepository
	historyRepo  *repository.HistoryRepository
	agentRepo    *repository.AgentRepository
	hub          *infrastructure.EventHub
	upgrader     websocket.Upgrader
}

func NewHandler(store *usecases.ConversationStore, orchestrator *usecases.ResponseOrchestrator, adapters []interfaces.ChannelAdapter, ruleRepo *repository.RuleRepository, historyRepo *repository.HistoryRepository, agentRepo *repository.AgentRepository, hub *infrastructure.EventHub) *Handler {
	byChannel := make(map[entities.Channel]interfaces.ChannelAdapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Handler{
		store:        store,
		orchestrator: orchestrator,
		adapters:     byChannel,
		ruleRepo:     ruleRepo,
		historyRepo:  historyRepo,
		agentRepo:    agentRepo,
		hub:          hub,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func SetupRoutes(r *gin.Engine, h *Handler, middleware *Middleware) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size
	r.Use(middleware.CORSMiddleware())

	// Provider webhooks (per-client rate limited, no auth; providers
	// sign at the gateway in front of us).
	webhooks := r.Group("/webhook", middleware.RateLimitPerClient(20, 40))
	{
		webhooks.POST("/chat", h.HandleChannelEvent(entities.ChannelChat))
		webhooks.POST("/email", h.HandleChannelEvent(entities.ChannelEmail))
		webhooks.POST("/voice", h.HandleChannelEvent(entities.ChannelVoice))
	}

	// Operator/CRM API.
	api := r.Group("/api", middleware.AuthRequired())
	{
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id", h.GetConversation)
		api.GET("/conversations/:id/messages", h.GetTranscript)
		api.POST("/conversations/:id/messages", h.SendOperatorMessage)
		api.POST("/conversations/:id/assign", h.AssignOperator)
		api.POST("/conversations/:id/mode", h.SetMode)
		api.POST("/conversations/:id/view/open", h.OpenView)
		api.POST("/conversations/:id/view/close", h.CloseView)
		api.POST("/conversations/:id/close", h.CloseConversation)
		api.GET("/conversations/:id/disposition", h.GetDisposition)
		api.POST("/conversations/:id/disposition", h.SetDisposition)
		api.GET("/leads/:leadId/history", h.LeadHistory)
		api.GET("/rules", h.ListRules)
		api.PUT("/rules", h.UpsertRule)
		api.DELETE("/rules/:code", h.DeleteRule)
		api.GET("/agents", h.ListAgents)
		api.PUT("/agents", h.UpsertAgent)
	}

	// Read-only event feed for dashboards.
	r.GET("/ws/events", h.HandleEvents)
}

// HandleChannelEvent is the ingress for one channel: normalize the
// provider payload, resolve or open the conversation, append, let the
// orchestrator decide on a reply, and honor end-of-session triggers.
func (h *Handler) HandleChannelEvent(channel entities.Channel) gin.HandlerFunc {
	adapter := h.adapters[channel]
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		ev, err := adapter.Ingest(raw)
		if err != nil {
			// Malformed events are dropped and logged; state untouched.
			log.Warn().Err(err).Str("channel", string(channel)).Msg("dropped channel event")
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}

		conv := h.store.FindOrOpen(ev.LeadID, ev.LeadName, channel, entities.ModeAutomated)

		if state := adapter.SessionState(ev.LeadID); state != nil {
			if err := h.store.MergeSessionState(conv.ID, state); err != nil {
				log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("session state not merged")
			}
		}

		if ev.Message != nil {
			msg := *ev.Message
			msg.ConversationID = conv.ID
			if err := h.store.Append(msg); err != nil {
				c.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			h.orchestrator.HandleInbound(msg)
		}

		if ev.EndOfSession {
			if ender, ok := adapter.(interface{ EndSession(string) }); ok {
				defer ender.EndSession(ev.LeadID)
			}
			result, err := h.store.Close(c.Request.Context(), conv.ID)
			if errors.Is(err, usecases.ErrNoDisposition) {
				// No rule matched; the conversation stays open until an
				// operator supplies a code.
				c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "closed": false, "manual_disposition_required": true})
				return
			}
			if err != nil {
				c.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "closed": true, "disposition": result})
			return
		}

		c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
	}
}

func (h *Handler) ListConversations(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.List())
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) GetTranscript(c *gin.Context) {
	messages, err := h.store.Transcript(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendOperatorMessage appends a human reply on behalf of the signed-in
// operator.
func (h *Handler) SendOperatorMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content required"})
		return
	}
	msg := entities.Message{
		ConversationID: c.Param("id"),
		Content:        req.Content,
		Origin:         entities.OriginHuman,
	}
	if err := h.store.Append(msg); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handler) AssignOperator(c *gin.Context) {
	var req struct {
		OperatorID string `json:"operator_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator_id required"})
		return
	}
	if err := h.store.Assign(c.Request.Context(), c.Param("id"), req.OperatorID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "assigned"})
}

func (h *Handler) SetMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode required"})
		return
	}
	mode := entities.Mode(req.Mode)
	if mode != entities.ModeAutomated && mode != entities.ModeHuman {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be automated or human"})
		return
	}
	if err := h.store.SetMode(c.Param("id"), mode); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) OpenView(c *gin.Context) {
	h.handleView(c, h.store.OpenView)
}

func (h *Handler) CloseView(c *gin.Context) {
	h.handleView(c, h.store.CloseView)
}

func (h *Handler) handleView(c *gin.Context, op func(conversationID, viewerID string) error) {
	var req struct {
		ViewerID string `json:"viewer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer_id required"})
		return
	}
	if err := op(c.Param("id"), req.ViewerID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CloseConversation(c *gin.Context) {
	result, err := h.store.Close(c.Request.Context(), c.Param("id"))
	if errors.Is(err, usecases.ErrNoDisposition) {
		c.JSON(http.StatusConflict, gin.H{"error": "no matching rule", "manual_disposition_required": true})
		return
	}
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetDisposition(c *gin.Context) {
	result, recorded, err := h.store.Disposition(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if !recorded {
		c.JSON(http.StatusNotFound, gin.H{"error": "no disposition recorded"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) SetDisposition(c *gin.Context) {
	var req struct {
		Code        string `json:"code" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
		return
	}
	result, err := h.store.CloseWith(c.Request.Context(), c.Param("id"), req.Code, req.Description)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) LeadHistory(c *gin.Context) {
	entries, err := h.historyRepo.ByLead(c.Request.Context(), c.Param("leadId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.ruleRepo.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) UpsertRule(c *gin.Context) {
	var req struct {
		entities.RegistryRule
		Position int `json:"position"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule"})
		return
	}
	if req.Code == "" || (req.Type != entities.RuleTypeAutomated && req.Type != entities.RuleTypeHuman) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and valid type required"})
		return
	}
	if err := h.ruleRepo.UpsertRule(c.Request.Context(), req.RegistryRule, req.Position); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.ruleRepo.DeleteRule(c.Request.Context(), c.Param("code")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.agentRepo.ListAgents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, agents)
}

// UpsertAgent is the push endpoint for the external presence source.
func (h *Handler) UpsertAgent(c *gin.Context) {
	var agent entities.Agent
	if err := c.ShouldBindJSON(&agent); err != nil || agent.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent"})
		return
	}
	if err := h.agentRepo.UpsertAgent(c.Request.Context(), agent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HandleEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.hub.ServeConn(conn)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, usecases.ErrUnknownConversation):
		return http.StatusNotFound
	case errors.Is(err, usecases.ErrConversationClosed):
		return http.StatusConflict
	case errors.Is(err, usecases.ErrOperatorUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
