package entity

import "time"

// User is a row in the `users` table. Email and Subdomain are stored
// lower-cased.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Subdomain    *string   `db:"subdomain" json:"subdomain"`
	Name         *string   `db:"name" json:"name"`
	Mobile       *string   `db:"mobile" json:"mobile"`
	Role         string    `db:"role" json:"role"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	WebsiteActive      = "active"
	WebsiteUnpublished = "unpublished"
)

// Website is the promo site owned by a user, created alongside the account.
type Website struct {
	ID                string     `db:"id"`
	UserID            string     `db:"user_id"`
	Subdomain         string     `db:"subdomain"`
	Status            string     `db:"status"`
	CanUpdateReferral bool       `db:"can_update_referral"`
	DatePublished     *time.Time `db:"date_published"`
	CreatedAt         time.Time  `db:"created_at"`
	LastModified      time.Time  `db:"last_modified"`
}
