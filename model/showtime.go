package model

import "time"

// ShowtimeRef identifies what a booking session is for.
type ShowtimeRef struct {
	MovieId    string    `json:"movieId"`
	MovieTitle string    `json:"movieTitle,omitempty"`
	CinemaId   string    `json:"cinemaId"`
	ShowtimeId string    `json:"showtimeId"`
	StartsAt   time.Time `json:"startsAt,omitempty"`
}

// Merge fills blank fields of r from fallback. Fields already set on r always win.
func (r ShowtimeRef) Merge(fallback ShowtimeRef) ShowtimeRef {
	if r.MovieId == "" {
		r.MovieId = fallback.MovieId
	}
	if r.MovieTitle == "" {
		r.MovieTitle = fallback.MovieTitle
	}
	if r.CinemaId == "" {
		r.CinemaId = fallback.CinemaId
	}
	if r.StartsAt.IsZero() {
		r.StartsAt = fallback.StartsAt
	}
	return r
}
