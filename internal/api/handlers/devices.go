package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/licensekey"
	"github.com/subrite/subkey/internal/metrics"
)

// DevicesStore defines the interface for device activation persistence.
type DevicesStore interface {
	GetLicenseByKey(ctx context.Context, key string) (*db.License, error)
	ActivateDevice(ctx context.Context, licenseID int64, fingerprint string, name *string, info map[string]any, maxDevices int) (*db.DeviceActivation, bool, int, error)
	ListActiveDevices(ctx context.Context, licenseID int64) ([]*db.DeviceActivation, error)
	DeactivateDevice(ctx context.Context, id int64) error
}

// DevicesHandler handles device activation endpoints.
type DevicesHandler struct {
	store      DevicesStore
	maxDevices int
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewDevicesHandler creates a new DevicesHandler.
func NewDevicesHandler(store DevicesStore, maxDevices int, m *metrics.Metrics, logger zerolog.Logger) *DevicesHandler {
	return &DevicesHandler{
		store:      store,
		maxDevices: maxDevices,
		metrics:    m,
		logger:     logger.With().Str("component", "devices_handler").Logger(),
	}
}

// RegisterRoutes registers device routes on the given router group.
func (h *DevicesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/licenses/devices/activate", h.Activate)
	r.POST("/licenses/devices/list", h.List)
	r.DELETE("/licenses/devices/:id", h.Deactivate)
}

// ActivateRequest is the request body for device activation.
type ActivateRequest struct {
	LicenseKey        string         `json:"license_key"`
	DeviceFingerprint string         `json:"device_fingerprint"`
	DeviceName        string         `json:"device_name"`
	DeviceInfo        map[string]any `json:"device_info"`
}

// DeviceView is the device representation returned to clients.
type DeviceView struct {
	ID          int64          `json:"id"`
	DeviceName  string         `json:"device_name"`
	DeviceInfo  map[string]any `json:"device_info"`
	ActivatedAt time.Time      `json:"activated_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}

// Activate activates a device against a license, enforcing the device limit.
// POST /licenses/devices/activate
func (h *DevicesHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if req.LicenseKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "license_key is required"})
		return
	}
	if req.DeviceFingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "device_fingerprint is required"})
		return
	}

	if !licensekey.IsWellFormed(req.LicenseKey) {
		h.metrics.ObserveActivation("malformed")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "invalid license key format"})
		return
	}

	lic, err := h.store.GetLicenseByKey(c.Request.Context(), req.LicenseKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("license lookup failed")
		h.metrics.ObserveActivation("error")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}
	if lic == nil {
		h.metrics.ObserveActivation("not_found")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "license key not found"})
		return
	}
	if lic.Status != db.LicenseStatusActive {
		h.metrics.ObserveActivation("inactive")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": fmt.Sprintf("license is %s", lic.Status)})
		return
	}

	var name *string
	if req.DeviceName != "" {
		name = &req.DeviceName
	}

	activation, created, liveCount, err := h.store.ActivateDevice(
		c.Request.Context(), lic.ID, req.DeviceFingerprint, name, req.DeviceInfo, h.maxDevices)
	if err != nil {
		if errors.Is(err, db.ErrDeviceLimitReached) {
			h.metrics.ObserveActivation("limit_reached")
			c.JSON(http.StatusOK, gin.H{
				"success":      false,
				"error":        "device_limit_reached",
				"message":      fmt.Sprintf("This license is already active on %d devices. Please deactivate a device first.", h.maxDevices),
				"device_count": liveCount,
				"max_devices":  h.maxDevices,
			})
			return
		}
		h.logger.Error().Err(err).Int64("license_id", lic.ID).Msg("device activation failed")
		h.metrics.ObserveActivation("error")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	message := "Device activated successfully"
	if !created {
		message = "Device already activated"
	}

	h.metrics.ObserveActivation("activated")
	h.logger.Info().
		Int64("license_id", lic.ID).
		Int64("activation_id", activation.ID).
		Bool("created", created).
		Int("device_count", liveCount).
		Msg("device activation")

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       message,
		"activation_id": activation.ID,
		"device_count":  liveCount,
		"max_devices":   h.maxDevices,
	})
}

// ListRequest is the request body for listing devices.
type ListRequest struct {
	LicenseKey string `json:"license_key"`
}

// List returns the live devices for a license, most recently seen first.
// POST /licenses/devices/list
func (h *DevicesHandler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LicenseKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "license_key is required"})
		return
	}

	lic, err := h.store.GetLicenseByKey(c.Request.Context(), req.LicenseKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("license lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}
	if lic == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "license key not found"})
		return
	}

	devices, err := h.store.ListActiveDevices(c.Request.Context(), lic.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("license_id", lic.ID).Msg("device listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		name := "Unknown Device"
		if d.DeviceName != nil && *d.DeviceName != "" {
			name = *d.DeviceName
		}
		views = append(views, DeviceView{
			ID:          d.ID,
			DeviceName:  name,
			DeviceInfo:  d.DeviceInfo,
			ActivatedAt: d.ActivatedAt,
			LastSeenAt:  d.LastSeenAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"devices": views,
		"count":   len(views),
	})
}

// Deactivate soft-deletes a device activation.
// DELETE /licenses/devices/:id
func (h *DevicesHandler) Deactivate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid device ID"})
		return
	}

	if err := h.store.DeactivateDevice(c.Request.Context(), id); err != nil {
		h.logger.Error().Err(err).Int64("activation_id", id).Msg("device deactivation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	h.logger.Info().Int64("activation_id", id).Msg("device deactivated")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Device deactivated successfully",
	})
}
