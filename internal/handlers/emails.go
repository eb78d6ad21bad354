package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-chain-analyzer/internal/models"
	"mail-chain-analyzer/internal/repository"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// ListEmails returns one page of ingested emails, newest first
func (h *Handlers) ListEmails(c *gin.Context) {
	limit := positiveInt(c.Query("limit"), defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	page := positiveInt(c.Query("page"), 1)

	filter := repository.Filter{Subject: h.opts.Subject, ESP: c.Query("esp")}
	ctx := c.Request.Context()

	items, err := h.emails.Find(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		logrus.Errorf("Failed to list emails: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch emails",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	total, err := h.emails.Count(ctx, filter)
	if err != nil {
		logrus.Errorf("Failed to count emails: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count emails",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, models.EmailListResponse{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetTestConfig tells the operator where to send test mail
func (h *Handlers) GetTestConfig(c *gin.Context) {
	c.JSON(http.StatusOK, models.TestConfigResponse{
		TestAddress: h.opts.TestAddress,
		Subject:     h.opts.Subject,
	})
}

// GetStats returns per-provider counts of ingested emails
func (h *Handlers) GetStats(c *gin.Context) {
	counts, err := h.emails.CountByESP(c.Request.Context(), repository.Filter{Subject: h.opts.Subject})
	if err != nil {
		logrus.Errorf("Failed to compute stats: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to compute stats",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	var total int64
	for _, count := range counts {
		total += count.Count
	}
	c.JSON(http.StatusOK, models.StatsResponse{Items: counts, Total: total})
}

// GetEmail returns a single email by ID
func (h *Handlers) GetEmail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid email ID", Code: http.StatusBadRequest})
		return
	}

	email, err := h.finder.FindByID(c.Request.Context(), uint(id))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Email not found", Code: http.StatusNotFound})
		return
	}
	if err != nil {
		logrus.Errorf("Failed to fetch email %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch email",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, email)
}

// positiveInt parses s, falling back to def when it is missing, invalid or
// zero, and clamping negative values to 1.
func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 {
		return def
	}
	if n < 1 {
		return 1
	}
	return n
}
