// Package role assigns account roles at registration.
package role

import "strings"

const (
	Admin = "admin"
	User  = "user"
)

// Classifier decides whether an email belongs to the admin allow-list.
// It is built once at startup and is read-only afterwards.
type Classifier struct {
	allow map[string]struct{}
}

// NewClassifier builds a classifier from allow-list entries. Entries are
// trimmed and lower-cased; blanks are ignored.
func NewClassifier(emails []string) *Classifier {
	allow := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalize(e)
		if e == "" {
			continue
		}
		allow[e] = struct{}{}
	}
	return &Classifier{allow: allow}
}

// IsPrivileged reports a case-insensitive allow-list match.
func (c *Classifier) IsPrivileged(email string) bool {
	_, ok := c.allow[normalize(email)]
	return ok
}

// RoleFor maps an email to Admin or User.
func (c *Classifier) RoleFor(email string) string {
	if c.IsPrivileged(email) {
		return Admin
	}
	return User
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
