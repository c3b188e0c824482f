package domain

import "time"

// Comment captures one message in a ticket thread.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorRole Role
	Body       string
	CreatedAt  time.Time
}
