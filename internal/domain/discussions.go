package domain

import "time"

type DiscussionCategory string

const (
	CategoryReview         DiscussionCategory = "review"
	CategoryTheory         DiscussionCategory = "theory"
	CategoryRecommendation DiscussionCategory = "recommendation"
	CategoryGeneral        DiscussionCategory = "general"
)

func (c DiscussionCategory) Valid() bool {
	switch c {
	case CategoryReview, CategoryTheory, CategoryRecommendation, CategoryGeneral:
		return true
	}
	return false
}

type Discussion struct {
	ID           string             `json:"id"`
	Author       UserSummary        `json:"author"`
	Title        string             `json:"title"`
	Body         string             `json:"body"`
	MovieID      string             `json:"movie_id"`
	MovieTitle   string             `json:"movie_title,omitempty"`
	PosterRef    string             `json:"poster_ref,omitempty"`
	Category     DiscussionCategory `json:"category"`
	Tags         []string           `json:"tags"`
	LikedBy      []string           `json:"liked_by"`
	ViewCount    int64              `json:"view_count"`
	CommentCount int                `json:"comment_count"`
	Comments     []Comment          `json:"comments"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (d Discussion) Comment(id string) (Comment, bool) {
	for _, c := range d.Comments {
		if c.ID == id {
			return c, true
		}
	}
	return Comment{}, false
}

type Comment struct {
	ID        string      `json:"id"`
	Author    UserSummary `json:"author"`
	Body      string      `json:"body"`
	LikedBy   []string    `json:"liked_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type NewDiscussion struct {
	Title      string
	Body       string
	MovieID    string
	MovieTitle string
	PosterRef  string
	Category   DiscussionCategory
	Tags       []string
}

type DiscussionPatch struct {
	Title    *string
	Body     *string
	Category *DiscussionCategory
	Tags     *[]string
}

type DiscussionFilter struct {
	MovieID  string
	Category DiscussionCategory
	Page     int
	Limit    int
}

type DiscussionPage struct {
	Discussions []Discussion `json:"discussions"`
	Page        int          `json:"page"`
	TotalPages  int          `json:"total_pages"`
	Total       int          `json:"total"`
}
