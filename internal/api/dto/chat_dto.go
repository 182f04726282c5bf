package dto

// PostChatMessageRequest payload.
type PostChatMessageRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}
