package domain

import (
	"strconv"
	"time"
)

// User is a registered link owner.
type User struct {
	UserID      int64
	DisplayName string
	LinkToken   string
	CreatedAt   time.Time
}

// DisplayNameFor falls back to id_<userID> when the platform has no username.
func DisplayNameFor(userID int64, username string) string {
	if username != "" {
		return username
	}
	return "id_" + strconv.FormatInt(userID, 10)
}
