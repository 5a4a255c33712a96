// Package queue defines the audit events exchanged over the message broker,
// the publisher used by the service and gate, and the consumer that turns
// events into an append-only audit log.
package queue

// Queue names. Each event type travels on its own durable queue.
const (
	AccountRegisteredQueue = "account.registered"
	AccessDeniedQueue      = "auth.denied"
)

// AccountRegisteredEvent is published after a successful signup.
type AccountRegisteredEvent struct {
	AccountID    string `json:"account_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	RegisteredAt string `json:"registered_at"`
}

// AccessDeniedEvent is published when an authenticated caller lacks the role
// a route requires. It is never echoed back to the caller.
type AccessDeniedEvent struct {
	AccountID    string   `json:"account_id"`
	Username     string   `json:"username"`
	Role         string   `json:"role"`
	AllowedRoles []string `json:"allowed_roles"`
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	DeniedAt     string   `json:"denied_at"`
}
