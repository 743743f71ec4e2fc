// Package handlers implements the HTTP endpoints of the Subkey API.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/licensekey"
	"github.com/subrite/subkey/internal/metrics"
)

// LicensesStore defines the interface for license lookup.
type LicensesStore interface {
	GetLicenseByKey(ctx context.Context, key string) (*db.License, error)
}

// LicensesHandler handles license validation endpoints.
type LicensesHandler struct {
	store   LicensesStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLicensesHandler creates a new LicensesHandler.
func NewLicensesHandler(store LicensesStore, m *metrics.Metrics, logger zerolog.Logger) *LicensesHandler {
	return &LicensesHandler{
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "licenses_handler").Logger(),
	}
}

// RegisterRoutes registers license routes on the given router group.
// rateLimiter guards the validate endpoint specifically.
func (h *LicensesHandler) RegisterRoutes(r *gin.RouterGroup, rateLimiter gin.HandlerFunc) {
	r.POST("/licenses/validate", rateLimiter, h.Validate)
}

// ValidateRequest is the request body for license validation.
type ValidateRequest struct {
	LicenseKey string `json:"license_key"`
}

// ValidateResponse is the response body for license validation.
type ValidateResponse struct {
	Valid     bool       `json:"valid"`
	Status    string     `json:"status,omitempty"`
	Email     string     `json:"email,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Validate checks a license key against the ledger.
// POST /licenses/validate
//
// Business-rule rejections (bad format, unknown key, non-active status) are
// 200 responses with valid:false so clients can tell them apart from
// transport failures; only internal errors return a 5xx.
func (h *LicensesHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LicenseKey == "" {
		h.metrics.ObserveValidation("bad_request")
		c.JSON(http.StatusBadRequest, ValidateResponse{
			Valid: false,
			Error: "license_key is required",
		})
		return
	}

	if !licensekey.IsWellFormed(req.LicenseKey) {
		h.metrics.ObserveValidation("malformed")
		c.JSON(http.StatusOK, ValidateResponse{
			Valid: false,
			Error: "invalid license key format",
		})
		return
	}

	lic, err := h.store.GetLicenseByKey(c.Request.Context(), req.LicenseKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("license lookup failed")
		h.metrics.ObserveValidation("error")
		c.JSON(http.StatusInternalServerError, ValidateResponse{
			Valid: false,
			Error: "internal server error",
		})
		return
	}

	if lic == nil {
		h.metrics.ObserveValidation("not_found")
		c.JSON(http.StatusOK, ValidateResponse{
			Valid: false,
			Error: "license key not found",
		})
		return
	}

	if lic.Status != db.LicenseStatusActive {
		h.metrics.ObserveValidation("inactive")
		c.JSON(http.StatusOK, ValidateResponse{
			Valid: false,
			Error: fmt.Sprintf("license is %s", lic.Status),
		})
		return
	}

	h.metrics.ObserveValidation("valid")
	c.JSON(http.StatusOK, ValidateResponse{
		Valid:     true,
		Status:    string(lic.Status),
		Email:     lic.Email,
		CreatedAt: &lic.CreatedAt,
	})
}
