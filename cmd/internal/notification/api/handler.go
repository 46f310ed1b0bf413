// Package notifyapi exposes a user's notifications over HTTP.
package notifyapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"pulse/cmd/internal/httpx"
	"pulse/cmd/internal/notification"
	v1 "pulse/shared/contracts/realtime/v1"
)

const testMessage = "This is a test notification!"

// Handler serves /notifications for the authenticated user.
type Handler struct {
	log        *slog.Logger
	store      notification.Store
	dispatcher *notification.Dispatcher
	auth       httpx.Authenticator
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, store notification.Store, dispatcher *notification.Dispatcher, auth httpx.Authenticator) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, store: store, dispatcher: dispatcher, auth: auth}
}

// Register wires notification routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /notifications", h.authed(h.handleList))
	mux.HandleFunc("GET /notifications/unread-count", h.authed(h.handleUnreadCount))
	mux.HandleFunc("PATCH /notifications/{id}/read", h.authed(h.handleMarkRead))
	mux.HandleFunc("PATCH /notifications/mark-all-read", h.authed(h.handleMarkAllRead))
	mux.HandleFunc("DELETE /notifications/{id}", h.authed(h.handleDelete))
	mux.HandleFunc("DELETE /notifications", h.authed(h.handleClearAll))
	mux.HandleFunc("POST /notifications/test", h.authed(h.handleTest))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (h *Handler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.RequireAuth(w, r, h.auth)
		if !ok {
			return
		}
		next(w, r, claims.UserID)
	}
}

type listResponse struct {
	Notifications []v1.NotificationPayload `json:"notifications"`
}

type countResponse struct {
	Count int `json:"count"`
}

type notificationResponse struct {
	Notification v1.NotificationPayload `json:"notification"`
}

type updatedResponse struct {
	Updated int `json:"updated"`
}

type deletedResponse struct {
	Deleted int `json:"deleted"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, userID string) {
	opts, err := parseListOptions(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	events, err := h.store.List(r.Context(), userID, opts)
	if err != nil {
		h.serverError(w, "notify.list.fail", err)
		return
	}

	out := make([]v1.NotificationPayload, 0, len(events))
	for _, e := range events {
		out = append(out, e.Payload())
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Notifications: out})
}

// parseListOptions reads order (newest|oldest, default newest), limit, and unread.
func parseListOptions(r *http.Request) (notification.ListOptions, error) {
	q := r.URL.Query()
	opts := notification.ListOptions{Order: notification.NewestFirst}

	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "newest", "desc":
	case "oldest", "asc":
		opts.Order = notification.OldestFirst
	default:
		return opts, errors.New("order must be newest or oldest")
	}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return opts, errors.New("limit must be a positive integer")
		}
		opts.Limit = n
	}

	if raw := strings.TrimSpace(q.Get("unread")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("unread must be a boolean")
		}
		opts.UnreadOnly = b
	}
	return opts, nil
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := h.store.UnreadCount(r.Context(), userID)
	if err != nil {
		h.serverError(w, "notify.unread_count.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	e, err := h.store.MarkRead(r.Context(), userID, r.PathValue("id"))
	if errors.Is(err, notification.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	if err != nil {
		h.serverError(w, "notify.mark_read.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, notificationResponse{Notification: e.Payload()})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := h.store.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.serverError(w, "notify.mark_all_read.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updatedResponse{Updated: n})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, userID string) {
	err := h.store.Delete(r.Context(), userID, r.PathValue("id"))
	if errors.Is(err, notification.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	if err != nil {
		h.serverError(w, "notify.delete.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearAll(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := h.store.DeleteAll(r.Context(), userID)
	if err != nil {
		h.serverError(w, "notify.clear_all.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request, userID string) {
	e, err := h.dispatcher.Dispatch(r.Context(), notification.Input{
		RecipientID: userID,
		SenderID:    userID,
		Type:        notification.TypeTest,
		Message:     testMessage,
	})
	if err != nil {
		h.serverError(w, "notify.test.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, notificationResponse{Notification: e.Payload()})
}

func (h *Handler) serverError(w http.ResponseWriter, event string, err error) {
	h.log.Error(event, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
}
