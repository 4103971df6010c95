package handler

import "appforge/internal/types"

func conversationSeed() types.ChatMessage {
	return types.ChatMessage{
		Author:  types.AuthorAI,
		Type:    types.MessageText,
		Content: "seed entry",
	}
}
