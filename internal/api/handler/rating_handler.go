package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"starblog/internal/api/middleware"
	"starblog/internal/app/service"
	"starblog/internal/common"
	"starblog/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type RatingHandler struct {
	ratingService *service.RatingService
}

func NewRatingHandler(ratingService *service.RatingService) *RatingHandler {
	return &RatingHandler{ratingService: ratingService}
}

type ratingCtxKey struct{}

// RegisterRoutes mounts the rating routes. The rating value is checked
// before guard runs, so an out of range value never reaches storage.
func (h *RatingHandler) RegisterRoutes(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/averageRating/{post_id}", h.average)
	r.With(RequireValidRating, guard).Post("/rate/{post_id}", h.rate)
}

// RequireValidRating parses the rating value and rejects anything outside
// [1,5] with 400.
func RequireValidRating(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, err := ratingValue(r)
		if err != nil || !model.ValidRating(value) {
			common.RespondWithDomainError(w, common.ErrInvalidRating)
			return
		}
		ctx := context.WithValue(r.Context(), ratingCtxKey{}, value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *RatingHandler) rate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		common.RespondWithDomainError(w, common.ErrUnauthenticated)
		return
	}

	value, ok := r.Context().Value(ratingCtxKey{}).(int)
	if !ok {
		common.RespondWithDomainError(w, common.ErrInvalidRating)
		return
	}

	average, err := h.ratingService.Rate(r.Context(), chi.URLParam(r, "post_id"), user, value)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, model.AverageResponse{AverageRating: average})
}

func (h *RatingHandler) average(w http.ResponseWriter, r *http.Request) {
	average, err := h.ratingService.GetAverage(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, model.AverageResponse{AverageRating: average})
}

// ratingValue reads "rating" from the query string, then a JSON body, then
// a form body.
func ratingValue(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("rating"); raw != "" {
		return strconv.Atoi(strings.TrimSpace(raw))
	}
	if isJSON(r) {
		var body struct {
			Rating json.Number `json:"rating"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return 0, err
		}
		n, err := body.Rating.Int64()
		return int(n), err
	}
	return strconv.Atoi(strings.TrimSpace(r.PostFormValue("rating")))
}
