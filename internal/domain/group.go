package domain

type GroupID string

// Group is the chat group a call lives in. Membership and permissions are
// managed elsewhere; only the identifier matters here.
type Group struct {
	ID GroupID
}
