package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"starblog/internal/common"
	"starblog/internal/domain/model"
)

// MemoryStore implements every repository in process memory. One mutex
// covers all tables, which makes RecordRating atomic.
type MemoryStore struct {
	mu      sync.Mutex
	users   []*model.User
	posts   []*model.Post
	ratings []*model.Rating

	usersByName map[string]*model.User
	ratingPairs map[string]struct{}

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByName: make(map[string]*model.User),
		ratingPairs: make(map[string]struct{}),
		now:         time.Now,
	}
}

// Ensure interfaces are met.
var _ UserRepository = memoryUsers{}
var _ PostRepository = memoryPosts{}
var _ RatingRepository = (*MemoryStore)(nil)

// Users, Posts and Ratings expose the store under each repository interface.
func (s *MemoryStore) Users() UserRepository     { return memoryUsers{s} }
func (s *MemoryStore) Posts() PostRepository     { return memoryPosts{s} }
func (s *MemoryStore) Ratings() RatingRepository { return s }

// DeleteUser removes a user and everything they own, mirroring ON DELETE CASCADE.
func (s *MemoryStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.ID == id {
			delete(s.usersByName, u.Username)
			s.users = append(s.users[:i], s.users[i+1:]...)
			break
		}
	}
	removed := make(map[string]struct{})
	posts := s.posts[:0]
	for _, p := range s.posts {
		if p.UserID == id {
			removed[p.ID] = struct{}{}
			continue
		}
		posts = append(posts, p)
	}
	s.posts = posts
	touched := make(map[string]struct{})
	ratings := s.ratings[:0]
	for _, r := range s.ratings {
		if _, gone := removed[r.PostID]; gone || r.UserID == id {
			delete(s.ratingPairs, ratingKey(r.PostID, r.UserID))
			if !gone {
				touched[r.PostID] = struct{}{}
			}
			continue
		}
		ratings = append(ratings, r)
	}
	s.ratings = ratings

	// Surviving posts that lost a rating get their average recomputed.
	for postID := range touched {
		if post := s.findPostLocked(postID); post != nil {
			post.Rating = s.aggregateLocked(postID).Average
		}
	}
}

// --- UserRepository ---

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByName[user.Username]; exists {
		return fmt.Errorf("user %q: %w", user.Username, common.ErrDuplicateUsername)
	}
	user.CreatedAt = s.now().UTC()
	stored := *user
	s.users = append(s.users, &stored)
	s.usersByName[stored.Username] = &stored
	return nil
}

func (m memoryUsers) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByName[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m memoryUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

// --- PostRepository ---

type memoryPosts struct{ s *MemoryStore }

func (m memoryPosts) Create(ctx context.Context, p *model.Post) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.userExistsLocked(p.UserID) {
		return fmt.Errorf("owner %s: %w", p.UserID, common.ErrInvalidCredentials)
	}
	p.Rating = 0
	p.CreatedAt = s.now().UTC()
	stored := *p
	s.posts = append(s.posts, &stored)
	return nil
}

func (m memoryPosts) FindByID(ctx context.Context, id string) (*model.Post, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPostLocked(id)
	if p == nil {
		return nil, common.ErrPostNotFound
	}
	copied := *p
	return &copied, nil
}

func (m memoryPosts) ListByUser(ctx context.Context, userID string) ([]model.Post, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := []model.Post{}
	for _, p := range s.posts {
		if p.UserID == userID {
			posts = append(posts, *p)
		}
	}
	return posts, nil
}

func (m memoryPosts) ListAll(ctx context.Context) ([]model.Post, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := make([]model.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, *p)
	}
	return posts, nil
}

// --- RatingRepository ---

func (s *MemoryStore) RecordRating(ctx context.Context, rating *model.Rating) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPostLocked(rating.PostID)
	if post == nil {
		return 0, common.ErrPostNotFound
	}
	if !s.userExistsLocked(rating.UserID) {
		return 0, fmt.Errorf("rater %s: %w", rating.UserID, common.ErrInvalidCredentials)
	}
	key := ratingKey(rating.PostID, rating.UserID)
	if _, exists := s.ratingPairs[key]; exists {
		return 0, common.ErrAlreadyRated
	}

	rating.CreatedAt = s.now().UTC()
	stored := *rating
	s.ratings = append(s.ratings, &stored)
	s.ratingPairs[key] = struct{}{}

	post.Rating = s.aggregateLocked(rating.PostID).Average
	return post.Rating, nil
}

func (s *MemoryStore) GetAverage(ctx context.Context, postID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPostLocked(postID)
	if post == nil {
		return 0, common.ErrPostNotFound
	}
	return post.Rating, nil
}

func (s *MemoryStore) Reconcile(ctx context.Context, postID string) (*model.RatingAuditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &model.RatingAuditResult{PostID: postID}
	post := s.findPostLocked(postID)
	if post == nil {
		result.Status = model.AuditStatusMissing
		return result, nil
	}
	agg := s.aggregateLocked(postID)
	result.Stored = post.Rating
	result.Expected = agg.Average
	result.Count = agg.Count
	result.Status = model.AuditStatusConsistent
	if !sameAverage(result.Stored, result.Expected) {
		post.Rating = result.Expected
		result.Status = model.AuditStatusRepaired
	}
	return result, nil
}

// SetStoredAverage overwrites posts.rating directly, bypassing the
// aggregate. It exists to exercise drift repair.
func (s *MemoryStore) SetStoredAverage(postID string, value float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPostLocked(postID)
	if post == nil {
		return false
	}
	post.Rating = value
	return true
}

// RatingCount returns how many ratings exist for (postID, userID); an empty
// userID counts every rating of the post.
func (s *MemoryStore) RatingCount(postID, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.ratings {
		if r.PostID == postID && (userID == "" || r.UserID == userID) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) aggregateLocked(postID string) model.RatingAggregate {
	agg := model.RatingAggregate{PostID: postID}
	sum := 0
	for _, r := range s.ratings {
		if r.PostID == postID {
			sum += r.Value
			agg.Count++
		}
	}
	if agg.Count > 0 {
		agg.Average = float64(sum) / float64(agg.Count)
	}
	return agg
}

func (s *MemoryStore) findPostLocked(id string) *model.Post {
	for _, p := range s.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *MemoryStore) userExistsLocked(id string) bool {
	for _, u := range s.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func ratingKey(postID, userID string) string {
	return strings.Join([]string{postID, userID}, "/")
}
