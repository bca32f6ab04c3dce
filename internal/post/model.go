package post

import (
	"encoding/json"
	"time"

	"postboard/internal/auth"
	"postboard/internal/comment"
)

const (
	maxTitleLength   = 100
	maxContentLength = 10000
	defaultPageSize  = 10
	maxPageSize      = 100
)

type Post struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Content      *string   `json:"content"`
	ImageURL     *string   `json:"image_url"`
	VideoURL     *string   `json:"video_url"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LikesCount   int64     `json:"likes_count"`
	UserHasLiked bool      `json:"user_has_liked"`
}

// Detail is a single post with its owner and comments.
type Detail struct {
	Post
	Owner    auth.Profile      `json:"owner"`
	Comments []comment.Comment `json:"comments"`
}

type Page struct {
	Total int64  `json:"total"`
	Posts []Post `json:"posts"`
}

type Input struct {
	Title    string  `json:"title"`
	Content  *string `json:"content"`
	ImageURL *string `json:"image_url"`
	VideoURL *string `json:"video_url"`
}

// Patch carries a partial update. Absent fields are left alone; fields sent
// as null are cleared.
type Patch struct {
	Title    Field `json:"title"`
	Content  Field `json:"content"`
	ImageURL Field `json:"image_url"`
	VideoURL Field `json:"video_url"`
}

type Field struct {
	Set   bool
	Value *string
}

func (f *Field) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Value = nil
		return nil
	}

	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	f.Value = &value
	return nil
}

type ListQuery struct {
	Skip     int
	Limit    int
	Search   string
	ViewerID string
}

type LikeStatus string

const (
	Liked   LikeStatus = "liked"
	Unliked LikeStatus = "unliked"
)
