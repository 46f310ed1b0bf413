// Package socialapi exposes posts and likes over HTTP.
package socialapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pulse/cmd/internal/httpx"
	"pulse/cmd/internal/social"
)

const maxBodyBytes = 64 << 10

// Handler serves /posts.
type Handler struct {
	log  *slog.Logger
	svc  *social.Service
	auth httpx.Authenticator
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc *social.Service, auth httpx.Authenticator) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc, auth: auth}
}

// Register wires post routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /posts", h.handleCreate)
	mux.HandleFunc("GET /posts/{id}", h.handleGet)
	mux.HandleFunc("POST /posts/{id}/like", h.handleToggleLike)
}

type createPostRequest struct {
	Body string `json:"body"`
}

type postResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

type likeResponse struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"`
	Likes  int    `json:"likes"`
}

func toPostResponse(p social.Post) postResponse {
	return postResponse{ID: p.ID, AuthorID: p.AuthorID, Body: p.Body, Likes: p.Likes, CreatedAt: p.CreatedAt}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.RequireAuth(w, r, h.auth)
	if !ok {
		return
	}

	var req createPostRequest
	if err := httpx.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	p, err := h.svc.CreatePost(r.Context(), time.Now().UTC(), claims.UserID, req.Body)
	switch {
	case errors.Is(err, social.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case err != nil:
		h.log.Error("social.post.create.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	default:
		httpx.WriteJSON(w, http.StatusCreated, toPostResponse(p))
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPost(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, social.ErrPostNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "post not found")
	case err != nil:
		h.log.Error("social.post.get.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	default:
		httpx.WriteJSON(w, http.StatusOK, toPostResponse(p))
	}
}

func (h *Handler) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.RequireAuth(w, r, h.auth)
	if !ok {
		return
	}

	res, err := h.svc.ToggleLike(r.Context(), time.Now().UTC(), r.PathValue("id"), claims.UserID)
	switch {
	case errors.Is(err, social.ErrPostNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "post not found")
	case err != nil:
		h.log.Error("social.post.like.fail", "err", err, "post_id", r.PathValue("id"), "user_id", claims.UserID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	default:
		httpx.WriteJSON(w, http.StatusOK, likeResponse{PostID: res.PostID, Liked: res.Liked, Likes: res.Likes})
	}
}
