package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/authz"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/policy"
)

// ConfigHandler exposes notification-config CRUD backed by the policy
// resolver.
type ConfigHandler struct {
	resolver *policy.Resolver
	logger   zerolog.Logger
}

func NewConfigHandler(resolver *policy.Resolver, logger zerolog.Logger) *ConfigHandler {
	return &ConfigHandler{
		resolver: resolver,
		logger:   logger.With().Str("handler", "config").Logger(),
	}
}

func (h *ConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	offset, limit := pagination(r)
	filter := policy.ConfigFilter{
		Name:       r.URL.Query().Get("name"),
		Type:       r.URL.Query().Get("type"),
		Code:       r.URL.Query().Get("code"),
		DeviceType: r.URL.Query().Get("deviceType"),
		Offset:     offset,
		Limit:      limit,
	}
	page, err := h.resolver.FilteredConfigurations(r.Context(), tenantID, filter)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list notification configs")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	configID, err := strconv.Atoi(mux.Vars(r)["configID"])
	if err != nil {
		http.Error(w, "Invalid config id", http.StatusBadRequest)
		return
	}
	cfg, err := h.resolver.ConfigByID(r.Context(), tenantID, configID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to load notification config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *ConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	var cfg models.NotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	created, err := h.resolver.AddConfig(r.Context(), tenantID, cfg)
	if err != nil {
		writeError(w, h.logger, err, "Failed to create notification config")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	configID, err := strconv.Atoi(mux.Vars(r)["configID"])
	if err != nil {
		http.Error(w, "Invalid config id", http.StatusBadRequest)
		return
	}
	var cfg models.NotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cfg.ID = configID
	updated, err := h.resolver.UpdateConfig(r.Context(), tenantID, cfg)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update notification config")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	configID, err := strconv.Atoi(mux.Vars(r)["configID"])
	if err != nil {
		http.Error(w, "Invalid config id", http.StatusBadRequest)
		return
	}
	if err := h.resolver.DeleteConfig(r.Context(), tenantID, configID); err != nil {
		writeError(w, h.logger, err, "Failed to delete notification config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Exists reports whether a (deviceType, code) pair is already configured.
func (h *ConfigHandler) Exists(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	deviceType := strings.TrimSpace(r.URL.Query().Get("deviceType"))
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if deviceType == "" || code == "" {
		http.Error(w, "deviceType and code are required", http.StatusBadRequest)
		return
	}
	exists, err := h.resolver.ConfigExists(r.Context(), tenantID, deviceType, code)
	if err != nil {
		writeError(w, h.logger, err, "Failed to check notification config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

type defaultArchiveRequest struct {
	ArchiveType models.ArchiveType   `json:"archive_type"`
	Period      models.ArchivePeriod `json:"period"`
}

// SetDefaultArchive persists the tenant-wide default archive policy.
func (h *ConfigHandler) SetDefaultArchive(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	var req defaultArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.resolver.SetDefaultArchiveMetadata(r.Context(), tenantID, req.ArchiveType, req.Period); err != nil {
		writeError(w, h.logger, err, "Failed to set default archive policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
