package domain

import (
	"time"
)

// Member is the minimal profile row kept for an identified caller.
type Member struct {
	UserID     string
	Nickname   string
	LastSeenAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
