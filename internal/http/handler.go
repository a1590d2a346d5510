package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
	"github.com/wenwu/saas-platform/provisioning-service/internal/service"
)

type Handler struct {
	provisionService *service.ProvisionService
	accountService   *service.AccountService
}

func NewHandler(provisionService *service.ProvisionService, accountService *service.AccountService) *Handler {
	return &Handler{
		provisionService: provisionService,
		accountService:   accountService,
	}
}

// ==================== Internal API Handlers ====================

// ProvisionOrder handles fulfillment requests from the order service
func (h *Handler) ProvisionOrder(c *gin.Context) {
	var req models.ProvisionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.provisionService.ProvisionOrderLine(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetProvision returns the detailed state of one provision record
func (h *Handler) GetProvision(c *gin.Context) {
	resp, err := h.provisionService.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListOrderLineProvisions returns every unit of one order line
func (h *Handler) ListOrderLineProvisions(c *gin.Context) {
	resp, err := h.provisionService.ListOrderLineProvisions(c.Request.Context(), c.Param("order_line_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": resp})
}

// RetryProvision runs one explicit retry of a failed unit
func (h *Handler) RetryProvision(c *gin.Context) {
	// Body is optional; an actor-less retry is attributed as unknown.
	var req models.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "unknown"
	}

	resp, err := h.provisionService.Retry(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordQA records a post-provisioning check outcome
func (h *Handler) RecordQA(c *gin.Context) {
	var req models.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provisionService.SetQAOutcome(c.Request.Context(), c.Param("id"), &req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// ListProvisionLogs returns the audit trail of one provision record
func (h *Handler) ListProvisionLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.provisionService.ListAttempts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Deprovision tears down one completed unit
func (h *Handler) Deprovision(c *gin.Context) {
	var req models.DeprovisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provisionService.Deprovision(c.Request.Context(), &req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deprovisioned"})
}

// SyncInbounds refreshes local inbound descriptors from the panel
func (h *Handler) SyncInbounds(c *gin.Context) {
	synced, err := h.provisionService.SyncInbounds(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": synced})
}

// ==================== User API Handlers ====================

// GetMyAccounts summarizes the caller's accounts for one order line
func (h *Handler) GetMyAccounts(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	orderLineID := c.Query("order_line_id")
	if orderLineID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_line_id required"})
		return
	}

	summaries, err := h.accountService.ListOrderLineAccounts(c.Request.Context(), userID.(string), orderLineID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": summaries})
}

// GetShareLink renders the share-link artifact (doubles as the QR payload)
func (h *Handler) GetShareLink(c *gin.Context) {
	h.renderArtifact(c, models.FormatShareLink)
}

// GetJSONConfig renders the client JSON config artifact
func (h *Handler) GetJSONConfig(c *gin.Context) {
	h.renderArtifact(c, models.FormatJSON)
}

// GetClashConfig renders the Clash proxy stanza artifact
func (h *Handler) GetClashConfig(c *gin.Context) {
	h.renderArtifact(c, models.FormatClash)
}

func (h *Handler) renderArtifact(c *gin.Context, format models.OutputFormat) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	resp, err := h.accountService.RenderArtifact(c.Request.Context(), userID.(string), c.Param("id"), format)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SyncMyAccountTraffic refreshes one account's traffic counters on demand
func (h *Handler) SyncMyAccountTraffic(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	mirror, err := h.provisionService.SyncAccountTraffic(c.Request.Context(), userID.(string), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id":    mirror.ID,
		"traffic_up":    mirror.TrafficUp,
		"traffic_down":  mirror.TrafficDown,
		"traffic_total": mirror.TrafficTotal,
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
