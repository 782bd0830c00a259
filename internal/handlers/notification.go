package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/authz"
	"github.com/notifar/notifar/internal/notification"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

// List returns the tenant's latest notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	offset, limit := pagination(r)

	notifications, err := h.service.LatestNotifications(r.Context(), tenantID, offset, limit)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

// ListForUser returns the calling user's notifications with READ/UNREAD
// status, optionally filtered with ?status=READ|UNREAD.
func (h *NotificationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	offset, limit := pagination(r)

	var isRead *bool
	switch strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))) {
	case "READ":
		v := true
		isRead = &v
	case "UNREAD":
		v := false
		isRead = &v
	}

	page, err := h.service.UserNotifications(r.Context(), username, limit, offset, isRead)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list user notifications")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.markActions(w, r, true)
}

func (h *NotificationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.markActions(w, r, false)
}

func (h *NotificationHandler) markActions(w http.ResponseWriter, r *http.Request, isRead bool) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.MarkActions(r.Context(), req.IDs, username, isRead); err != nil {
		writeError(w, h.logger, err, "Failed to update notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	count, err := h.service.UnreadCount(r.Context(), username)
	if err != nil {
		writeError(w, h.logger, err, "Failed to count unread notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": count})
}

func (h *NotificationHandler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.service.DeleteUserNotifications(r.Context(), req.IDs, username)
	if err != nil {
		writeError(w, h.logger, err, "Failed to delete notifications")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	if err := h.service.DeleteAllUserNotifications(r.Context(), username); err != nil {
		writeError(w, h.logger, err, "Failed to delete notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) ArchiveSelected(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.service.ArchiveUserNotifications(r.Context(), req.IDs, username)
	if err != nil {
		writeError(w, h.logger, err, "Failed to archive notifications")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *NotificationHandler) ArchiveAll(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	if err := h.service.ArchiveAllUserNotifications(r.Context(), username); err != nil {
		writeError(w, h.logger, err, "Failed to archive notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pagination(r *http.Request) (offset, limit int) {
	limit = 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return offset, limit
}
