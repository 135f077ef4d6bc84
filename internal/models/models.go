// Package models defines the core data structures for Recommendy.
//
// It includes the dialogue session, restaurant candidates, recommendation records,
// request payloads and the JSON response envelope shared across modules.
package models

import (
	"errors"
	"strings"
)

// Validation constants for input validation
const (
	// MaxUserIDLength defines the maximum allowed length for a user identifier
	MaxUserIDLength = 128
	// MaxUtteranceLength defines the maximum allowed length for a single user utterance
	MaxUtteranceLength = 4096
	// MaxDisplayNameLength defines the maximum allowed length for a display name
	MaxDisplayNameLength = 100
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID         = errors.New("user_id is required")
	ErrUserIDTooLong       = errors.New("user_id exceeds maximum length")
	ErrEmptyText           = errors.New("text is required")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrDisplayNameTooLong  = errors.New("name exceeds maximum length")
	ErrInvalidFlow         = errors.New("invalid conversation flow")
	ErrSessionStoreMissing = errors.New("session store not configured")
)

// StartConversationRequest is the payload for POST /start_conversation.
type StartConversationRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Validate checks a StartConversationRequest.
func (r *StartConversationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if len(r.Name) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	return nil
}

// ProcessInputRequest is the payload for POST /process_input.
type ProcessInputRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Validate checks a ProcessInputRequest.
func (r *ProcessInputRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if len(r.Text) > MaxUtteranceLength {
		return ErrTextTooLong
	}
	return nil
}

// SentimentAnalysisRequest is the payload for POST /sentiment_analysis.
type SentimentAnalysisRequest struct {
	Text string `json:"text"`
}

// SentimentAnalysisResult is the result of POST /sentiment_analysis.
type SentimentAnalysisResult struct {
	Polarity       float64 `json:"polarity"`
	Subjectivity   float64 `json:"subjectivity"`
	Interpretation string  `json:"interpretation"`
}

// InboundMessage represents a chat message received from a messaging channel.
type InboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Name string `json:"name,omitempty"` // sender's profile name, if the channel provides one
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
