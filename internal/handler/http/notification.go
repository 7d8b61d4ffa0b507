package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
)

const streamKeepalive = 30 * time.Second

type NotificationHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	UnreadCount(w http.ResponseWriter, r *http.Request)
	MarkAsRead(w http.ResponseWriter, r *http.Request)
	MarkAllAsRead(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)

	GetPreferences(w http.ResponseWriter, r *http.Request)
	UpdatePreference(w http.ResponseWriter, r *http.Request)

	GetSSEToken(w http.ResponseWriter, r *http.Request)
	Stream(w http.ResponseWriter, r *http.Request)
}

type notificationHandlerImpl struct {
	notifService notification.Service
	jwtService   jwt.Service
}

func NewNotificationHandler(notifService notification.Service, jwtService jwt.Service) NotificationHandler {
	return &notificationHandlerImpl{
		notifService: notifService,
		jwtService:   jwtService,
	}
}

func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return n
}

func getBoolQueryParam(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// List implements NotificationHandler.
func (h *notificationHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	q := r.URL.Query()
	req := notification.ListRequest{
		Type:       q.Get("type"),
		RequestID:  q.Get("request_id"),
		UnreadOnly: getBoolQueryParam(r, "unread_only"),
		Page:       getIntQueryParam(r, "page", 1),
		PageSize:   getIntQueryParam(r, "page_size", 20),
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	inbox, err := h.notifService.Inbox(r.Context(), req.ToFilter(actor.UserID))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, inbox)
}

// UnreadCount implements NotificationHandler.
func (h *notificationHandlerImpl) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	count, err := h.notifService.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, notification.UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead implements NotificationHandler. The id list is required here;
// MarkAllAsRead covers the empty case.
func (h *notificationHandlerImpl) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var req notification.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}
	if len(req.NotificationIDs) == 0 {
		response.ValidationError(w, map[string]string{"notification_ids": "notification_ids is required"})
		return
	}

	h.markRead(w, r, actor.UserID, req.NotificationIDs)
}

// MarkAllAsRead implements NotificationHandler.
func (h *notificationHandlerImpl) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	h.markRead(w, r, actor.UserID, nil)
}

func (h *notificationHandlerImpl) markRead(w http.ResponseWriter, r *http.Request, userID string, ids []string) {
	updated, err := h.notifService.MarkRead(r.Context(), userID, ids)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Notifications marked as read", notification.MarkReadResponse{Updated: updated})
}

// Delete implements NotificationHandler.
func (h *notificationHandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	if err := h.notifService.Delete(r.Context(), actor.UserID, chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Notification deleted", nil)
}

// GetPreferences implements NotificationHandler.
func (h *notificationHandlerImpl) GetPreferences(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	prefs, err := h.notifService.Preferences(r.Context(), actor.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, prefs)
}

// UpdatePreference implements NotificationHandler.
func (h *notificationHandlerImpl) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var req notification.UpdatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	if err := h.notifService.SetPreference(r.Context(), actor.UserID, req); err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Preference updated", nil)
}

// GetSSEToken implements NotificationHandler.
func (h *notificationHandlerImpl) GetSSEToken(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	token, expiresIn, err := h.jwtService.GenerateSSEToken(actor.UserID)
	if err != nil {
		slog.Error("Failed to generate SSE token", "user_id", actor.UserID, "error", err)
		response.InternalServerError(w, "Failed to generate SSE token")
		return
	}
	response.Success(w, notification.SSETokenResponse{Token: token, ExpiresIn: expiresIn})
}

// Stream implements NotificationHandler. EventSource cannot set headers, so
// the short-lived token travels in the query string.
func (h *notificationHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		response.Unauthorized(w, "Missing token")
		return
	}
	userID, err := h.jwtService.ValidateSSEToken(tokenStr)
	if err != nil {
		response.Unauthorized(w, "Invalid token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	stream, unsubscribe := h.notifService.Subscribe(r.Context(), userID)
	defer unsubscribe()

	if err := writeSSE(w, "connected", map[string]string{"user_id": userID}); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if err := writeSSE(w, ev.Event, ev.Data); err != nil {
				slog.Debug("SSE client gone", "user_id", userID, "error", err)
				return
			}
		case t := <-keepalive.C:
			if err := writeSSE(w, "ping", map[string]int64{"timestamp": t.Unix()}); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w io.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
