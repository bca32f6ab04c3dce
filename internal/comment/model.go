package comment

import (
	"time"

	"postboard/internal/auth"
)

const maxContentLength = 5000

type Comment struct {
	ID        int64        `json:"id"`
	Content   string       `json:"content"`
	OwnerID   string       `json:"owner_id"`
	PostID    int64        `json:"post_id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Owner     auth.Profile `json:"owner"`
}
