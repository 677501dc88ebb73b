package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique dispatch run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewPostingID generates a unique job posting ID with the "post_" prefix
// Format: post_<uuid>
func NewPostingID() string {
	return "post_" + uuid.New().String()
}
