package model

import "time"

const (
	RatingMin = 1
	RatingMax = 5
)

type Rating struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// RatingAggregate is what the ratings table says a post's average should be.
type RatingAggregate struct {
	PostID  string  `json:"post_id"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// AverageResponse is the wire form of a post's average.
type AverageResponse struct {
	AverageRating float64 `json:"average_rating"`
}

func ValidRating(value int) bool {
	return value >= RatingMin && value <= RatingMax
}
