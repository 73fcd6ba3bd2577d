// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxMessageBytes caps the question payload. The backend enforces the
// same limit; rejecting locally saves a round trip.
const MaxMessageBytes = 32 * 1024

var validate *validator.Validate

func init() {
	validate = validator.New()

	// maxbytes validates byte length, not rune count; the server-side
	// limit is a byte budget.
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
}

// =============================================================================
// Request Types
// =============================================================================

// ChatRequest is the POST /api/v1/chat payload.
//
// # Description
//
// Carries one user question into the streaming chat endpoint. SessionID
// keys the backend's conversation memory; PDFFileID optionally scopes
// retrieval to a single uploaded document.
type ChatRequest struct {
	Message   string `json:"message" validate:"required,maxbytes=32768"`
	SessionID string `json:"sessionId" validate:"required"`
	PDFFileID string `json:"pdfFileId,omitempty"`
}

// EnsureDefaults fills a missing session id with a fresh UUID.
func (r *ChatRequest) EnsureDefaults() {
	if r.SessionID == "" {
		r.SessionID = uuid.New().String()
	}
}

// Validate checks the request against its struct tags.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}

// ClearRequest is the POST /api/v1/chat/clear payload.
type ClearRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// Validate checks the request against its struct tags.
func (r *ClearRequest) Validate() error {
	return validate.Struct(r)
}
