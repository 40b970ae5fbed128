package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nanofleet/agentd/internal/llm"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/notify"
	"github.com/nanofleet/agentd/internal/services"
)

var errAgentNotFound = errors.New("Agent not found")

const notificationKeepAlive = 5 * time.Second

type AgentHandler struct {
	log       *logger.Logger
	agentName string
	gateway   services.GatewayService
	sessions  services.SessionService
	usage     services.UsageService
	bus       *notify.Bus
}

func NewAgentHandler(
	log *logger.Logger,
	agentName string,
	gatewayService services.GatewayService,
	sessionService services.SessionService,
	usageService services.UsageService,
	bus *notify.Bus,
) *AgentHandler {
	return &AgentHandler{
		log:       log.With("handler", "AgentHandler"),
		agentName: agentName,
		gateway:   gatewayService,
		sessions:  sessionService,
		usage:     usageService,
		bus:       bus,
	}
}

type chatRequest struct {
	Messages   []llm.Message `json:"messages"`
	ThreadID   string        `json:"threadId"`
	ResourceID string        `json:"resourceId"`
}

func (h *AgentHandler) requireAgent(c *gin.Context) (string, bool) {
	agentID := c.Param("id")
	if !h.gateway.HasAgent(agentID) {
		RespondError(c, http.StatusNotFound, "agent_not_found", errAgentNotFound)
		return "", false
	}
	return agentID, true
}

func (h *AgentHandler) ListAgents(c *gin.Context) {
	RespondOK(c, gin.H{
		"agents": []gin.H{{"id": "main", "name": h.agentName}},
	})
}

func (h *AgentHandler) Generate(c *gin.Context) {
	agentID, ok := h.requireAgent(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.gateway.Generate(c.Request.Context(), agentID, req.Messages, req.ThreadID, req.ResourceID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "generate_failed", err)
		return
	}

	RespondOK(c, gin.H{
		"text":     result.Text,
		"threadId": result.ThreadID,
		"usage":    result.Usage,
		"cost":     result.Cost,
	})
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEData(c *gin.Context, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", raw)
	c.Writer.Flush()
}

func (h *AgentHandler) Stream(c *gin.Context) {
	agentID, ok := h.requireAgent(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	sseHeaders(c)

	threadID, err := h.gateway.Stream(c.Request.Context(), agentID, req.Messages, req.ThreadID, req.ResourceID, func(text string) {
		writeSSEData(c, gin.H{"text": text})
	})
	if err != nil {
		writeSSEData(c, gin.H{"error": err.Error()})
		return
	}
	writeSSEData(c, gin.H{"done": true, "threadId": threadID})
}

func (h *AgentHandler) ListThreads(c *gin.Context) {
	if _, ok := h.requireAgent(c); !ok {
		return
	}

	threads, err := h.sessions.ListThreads(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_threads_failed", err)
		return
	}
	RespondOK(c, gin.H{"threads": threads})
}

func (h *AgentHandler) CreateThread(c *gin.Context) {
	if _, ok := h.requireAgent(c); !ok {
		return
	}

	var req struct {
		ResourceID string `json:"resourceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	thread, err := h.sessions.CreateThread(c.Request.Context(), req.ResourceID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_thread_failed", err)
		return
	}
	RespondOK(c, gin.H{"thread": thread})
}

func (h *AgentHandler) AgentUsage(c *gin.Context) {
	agentID, ok := h.requireAgent(c)
	if !ok {
		return
	}

	summary, err := h.usage.AgentSummary(c.Request.Context(), agentID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "usage_failed", err)
		return
	}
	RespondOK(c, summary)
}

func (h *AgentHandler) ThreadUsage(c *gin.Context) {
	agentID, ok := h.requireAgent(c)
	if !ok {
		return
	}

	summary, err := h.usage.ThreadSummary(c.Request.Context(), agentID, c.Param("threadId"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "usage_failed", err)
		return
	}
	RespondOK(c, summary)
}

// NotificationsStream holds the connection open and forwards every bus
// notification as an SSE data event, with periodic keep-alive comments. The
// subscription lives exactly as long as the connection.
func (h *AgentHandler) NotificationsStream(c *gin.Context) {
	if _, ok := h.requireAgent(c); !ok {
		return
	}

	sseHeaders(c)
	c.Writer.Flush()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	keepAlive := time.NewTicker(notificationKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()
		case n, ok := <-sub.Outbound:
			if !ok {
				return
			}
			writeSSEData(c, n)
		}
	}
}
