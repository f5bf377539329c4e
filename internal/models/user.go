package models

import "time"

// User is an API credential record. The table shares the transactional store
// with the queue; token middleware itself lives outside this service.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Disabled     bool       `json:"disabled"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
