// Package models defines the core data structures for WinBackBot.
//
// It includes the persisted customer record, conversation messages, campaign tiers
// and the JSON envelope used by the HTTP API. These types are shared across modules.
package models

import (
	"errors"
	"slices"
	"time"
)

// Record constraints
const (
	// MaxHistoryMessages is the number of most recent messages kept per customer.
	MaxHistoryMessages = 10
	// DefaultCustomerName is the placeholder name used until the real name is known.
	DefaultCustomerName = "Cliente"
)

// Error variables for better error handling and testability
var (
	ErrEmptyPhone       = errors.New("phone cannot be empty")
	ErrInvalidRole      = errors.New("invalid message role")
	ErrCustomerNotFound = errors.New("customer not found")
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message written by the customer.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the bot.
	RoleAssistant Role = "assistant"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single entry of a customer's conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// Turn is a message stripped of its timestamp, as handed to the generation service.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Customer is the persisted state kept for one phone number.
type Customer struct {
	Phone               string    `json:"phone"`
	Name                string    `json:"name"`
	FirstContact        Timestamp `json:"first_contact"`
	LastContact         Timestamp `json:"last_contact"`
	ConversationHistory []Message `json:"conversation_history"`
	CouponsSent         []int     `json:"coupons_sent"`
	TotalMessages       int       `json:"total_messages"`
}

// NewCustomer creates a fresh record first seen at now.
func NewCustomer(phone, name string, now time.Time) Customer {
	if name == "" {
		name = DefaultCustomerName
	}
	return Customer{
		Phone:               phone,
		Name:                name,
		FirstContact:        Timestamp{Time: now},
		LastContact:         Timestamp{Time: now},
		ConversationHistory: []Message{},
		CouponsSent:         []int{},
	}
}

// Normalize replaces nil collections so the record always serializes with empty lists.
func (c *Customer) Normalize() {
	if c.ConversationHistory == nil {
		c.ConversationHistory = []Message{}
	}
	if c.CouponsSent == nil {
		c.CouponsSent = []int{}
	}
}

// Clone returns a deep copy that shares no slices with c.
func (c Customer) Clone() Customer {
	out := c
	out.ConversationHistory = slices.Clone(c.ConversationHistory)
	out.CouponsSent = slices.Clone(c.CouponsSent)
	out.Normalize()
	return out
}

// Touch records an inbound contact at now. LastContact never moves backwards.
func (c *Customer) Touch(now time.Time) {
	if now.After(c.LastContact.Time) {
		c.LastContact = Timestamp{Time: now}
	}
	c.TotalMessages++
}

// AppendMessage appends a message and evicts the oldest entries beyond limit.
func (c *Customer) AppendMessage(m Message, limit int) {
	c.ConversationHistory = append(c.ConversationHistory, m)
	if limit > 0 && len(c.ConversationHistory) > limit {
		trimmed := make([]Message, limit)
		copy(trimmed, c.ConversationHistory[len(c.ConversationHistory)-limit:])
		c.ConversationHistory = trimmed
	}
}

// Turns returns the conversation history without timestamps, oldest first.
func (c Customer) Turns() []Turn {
	turns := make([]Turn, 0, len(c.ConversationHistory))
	for _, m := range c.ConversationHistory {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// HasTier reports whether the tier identified by thresholdDays was already dispatched.
func (c Customer) HasTier(thresholdDays int) bool {
	return slices.Contains(c.CouponsSent, thresholdDays)
}

// MarkTier adds thresholdDays to CouponsSent. It never removes entries.
func (c *Customer) MarkTier(thresholdDays int) bool {
	if c.HasTier(thresholdDays) {
		return false
	}
	c.CouponsSent = append(c.CouponsSent, thresholdDays)
	return true
}

// DaysInactive returns the whole number of days elapsed since LastContact.
func (c Customer) DaysInactive(now time.Time) int {
	elapsed := now.Sub(c.LastContact.Time)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// API Response types for consistent JSON responses

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
