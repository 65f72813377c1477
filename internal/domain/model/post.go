package model

import "time"

// Post.Rating is the denormalized mean of the post's ratings. Only the
// rating repository writes it.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Rating    float64   `json:"rating"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
