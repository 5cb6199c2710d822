package models

import "time"

// Note is a study note shared on the platform.
type Note struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Course        string    `json:"course"`
	Department    string    `json:"department"`
	FileURL       string    `json:"file_url"`
	Uploader      User      `json:"uploader"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	Downloads     int       `json:"downloads"`
	Bookmarked    bool      `json:"bookmarked"`
	CreatedAt     time.Time `json:"created_at"`
}

// FacultyMember is an entry in the public faculty directory.
type FacultyMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Department  string `json:"department"`
	Email       string `json:"email"`
	OfficeHours string `json:"office_hours"`
}

// NoteRequest is a request for notes that have not been uploaded yet.
type NoteRequest struct {
	ID        int64     `json:"id"`
	Course    string    `json:"course"`
	Topic     string    `json:"topic"`
	Details   string    `json:"details"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
