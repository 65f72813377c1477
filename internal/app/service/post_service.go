package service

import (
	"context"
	"fmt"

	"starblog/internal/domain/model"
	"starblog/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

type PostService struct {
	postRepo repository.PostRepository
	log      *zap.Logger
}

func NewPostService(postRepo repository.PostRepository, log *zap.Logger) *PostService {
	return &PostService{postRepo: postRepo, log: log}
}

type CreatePostRequest struct {
	Title   string `json:"title" validate:"required,max=100"`
	Content string `json:"content" validate:"max=500"`
}

func (s *PostService) CreatePost(ctx context.Context, owner *model.User, req CreatePostRequest) (*model.Post, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:      uuid.NewString(),
		Title:   req.Title,
		Slug:    slug.Make(req.Title),
		Content: req.Content,
		UserID:  owner.ID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.log.Info("post created", zap.String("post_id", post.ID), zap.String("user_id", owner.ID))
	return post, nil
}

func (s *PostService) ListMyPosts(ctx context.Context, owner *model.User) ([]model.Post, error) {
	posts, err := s.postRepo.ListByUser(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts of %s: %w", owner.ID, err)
	}
	return posts, nil
}

// ListAllPosts returns every post. There is no pagination.
func (s *PostService) ListAllPosts(ctx context.Context) ([]model.Post, error) {
	posts, err := s.postRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}
