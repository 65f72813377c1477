package handler

import (
	"encoding/json"
	"net/http"

	"starblog/internal/api/middleware"
	"starblog/internal/app/service"
	"starblog/internal/common"
	"starblog/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type PostHandler struct {
	postService *service.PostService
}

func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// RegisterRoutes mounts the post routes; guard wraps the ones that need a session.
func (h *PostHandler) RegisterRoutes(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/", h.listAll)
	r.Group(func(protected chi.Router) {
		protected.Use(guard)
		protected.Get("/my-posts", h.listMine)
		protected.Post("/createPost", h.create)
	})
}

func (h *PostHandler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		common.RespondWithDomainError(w, common.ErrUnauthenticated)
		return
	}

	var req service.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if _, err := h.postService.CreatePost(r.Context(), user, req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithMessage(w, http.StatusOK, "Post created successfully!")
}

func (h *PostHandler) listMine(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		common.RespondWithDomainError(w, common.ErrUnauthenticated)
		return
	}

	posts, err := h.postService.ListMyPosts(r.Context(), user)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, nonNil(posts))
}

func (h *PostHandler) listAll(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.ListAllPosts(r.Context())
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, nonNil(posts))
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil(posts []model.Post) []model.Post {
	if posts == nil {
		return []model.Post{}
	}
	return posts
}
