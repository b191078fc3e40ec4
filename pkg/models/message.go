package models

import "time"

// IncomingMessage is the wire payload pushed by the chat-platform
// collaborator when a monitored group receives a message.
type IncomingMessage struct {
	GroupID         uint      `json:"group_id" binding:"required"`
	SenderAccountID uint      `json:"sender_account_id"`
	SenderUserID    string    `json:"sender_user_id" binding:"required"`
	Username        string    `json:"username"`
	FirstName       string    `json:"first_name"`
	Text            string    `json:"text" binding:"required"`
	IsSenderAdmin   bool      `json:"is_sender_admin"`
	Timestamp       time.Time `json:"timestamp"`
}
