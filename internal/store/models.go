package store

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Edition struct {
	ID          string
	Lang        string
	Name        string
	Description string
	PictureKey  string
	PictureURL  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Article struct {
	ID              string
	EditionID       string
	Heading         string
	Body            string
	URL             string
	PublicationDate time.Time
	FullyAnnotated  bool
	Tone            string
	Comment         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ArticleUpdate carries the content columns of an article; nil leaves a column
// untouched.
type ArticleUpdate struct {
	Heading         *string
	Body            *string
	URL             *string
	PublicationDate *time.Time
}

type MetaphorModel struct {
	ID        string
	Name      string
	Comment   string
	CaseCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MetaphorCase is one annotated character range. RangeStart/RangeEnd and
// Location are written once at insert time.
type MetaphorCase struct {
	ID          string
	ArticleID   string
	Location    string
	RangeStart  int
	RangeEnd    int
	Text        string
	Comment     string
	ModelID     string
	ModelName   string
	EditionID   string
	EditionName string
	Lang        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CaseUpdate carries the mutable case columns; nil leaves a column untouched.
type CaseUpdate struct {
	Text    *string
	Comment *string
	ModelID *string
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

type ToneCount struct {
	Lang  string
	Tone  string
	Count int
}

type MonthlyCount struct {
	Lang  string
	Month time.Time
	Count int
}

type ModelFrequency struct {
	ModelID   string
	ModelName string
	Count     int
}
