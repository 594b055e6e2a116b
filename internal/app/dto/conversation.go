package dto

import "time"

// Conversation is the dashboard list item, carrying a preview of the latest
// message.
type Conversation struct {
	ID              string    `json:"id"`
	PageID          string    `json:"page_id"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	CreatedAt       time.Time `json:"created_at"`
	LastMessageAt   time.Time `json:"last_message_at"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageFrom string    `json:"last_message_direction,omitempty"`
}

type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	Direction      string    `json:"direction"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageList struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
