package models

// Role is the caller role carried in access tokens.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)
