package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/db"
)

// AdminStore is the subset of the store the admin handler needs.
type AdminStore interface {
	ListLicenses(ctx context.Context, limit, offset int) ([]*db.License, int, error)
	GetLicenseByKey(ctx context.Context, key string) (*db.License, error)
	RevokeLicense(ctx context.Context, key string, status db.LicenseStatus) error
	ListActiveDevices(ctx context.Context, licenseID int64) ([]*db.DeviceActivation, error)
}

// AdminHandler serves the operator endpoints. All routes are registered
// behind bearer-token auth.
type AdminHandler struct {
	store  AdminStore
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(store AdminStore, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		logger: logger.With().Str("component", "admin_handler").Logger(),
	}
}

// RegisterRoutes registers admin routes on the given router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/licenses", h.ListLicenses)
	r.GET("/admin/licenses/:key", h.GetLicense)
	r.POST("/admin/licenses/:key/revoke", h.RevokeLicense)
}

// ListLicenses returns a paginated view of the license ledger.
// GET /api/v1/admin/licenses?limit=50&offset=0
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	licenses, total, err := h.store.ListLicenses(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list licenses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"licenses": licenses,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetLicense returns a single license with its live device activations.
// GET /api/v1/admin/licenses/:key
func (h *AdminHandler) GetLicense(c *gin.Context) {
	key := c.Param("key")

	license, err := h.store.GetLicenseByKey(c.Request.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to look up license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if license == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
		return
	}

	devices, err := h.store.ListActiveDevices(c.Request.Context(), license.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list devices for license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"license": license,
		"devices": devices,
	})
}

// RevokeLicense marks a license revoked. Idempotent, revoking an
// already-revoked or unknown key succeeds.
// POST /api/v1/admin/licenses/:key/revoke
func (h *AdminHandler) RevokeLicense(c *gin.Context) {
	key := c.Param("key")

	if err := h.store.RevokeLicense(c.Request.Context(), key, db.LicenseStatusRevoked); err != nil {
		h.logger.Error().Err(err).Msg("failed to revoke license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.logger.Info().Str("license_key", key).Msg("license revoked by operator")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "License revoked"})
}
