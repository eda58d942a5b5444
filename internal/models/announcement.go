package models

import "time"

// Announcement is a notice published by mess admins for students.
type Announcement struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	PostedBy  string    `db:"posted_by" json:"posted_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
