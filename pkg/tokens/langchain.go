package tokens

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// TurnsFromMessages converts a langchaingo message history into chat turns
// so agent code built on llms.MessageContent can feed its history straight
// into FitToBudget. Text parts are concatenated; tool call responses keep
// their content as the turn body with the tool name as the speaker label.
func TurnsFromMessages(messages []llms.MessageContent) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, msg := range messages {
		turn := ChatTurn{Role: roleFromMessageType(msg.Role)}

		var parts []string
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				parts = append(parts, p.Text)
			case llms.ToolCallResponse:
				parts = append(parts, p.Content)
				if turn.Name == "" {
					turn.Name = p.Name
				}
			case llms.ToolCall:
				if p.FunctionCall != nil {
					parts = append(parts, p.FunctionCall.Name+" "+p.FunctionCall.Arguments)
				}
			}
		}
		turn.Content = strings.Join(parts, "\n")
		turns = append(turns, turn)
	}
	return turns
}

// MessagesFromTurns converts chat turns back to langchaingo messages, the
// inverse of TurnsFromMessages for the text-only case.
func MessagesFromTurns(turns []ChatTurn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, llms.MessageContent{
			Role:  messageTypeFromRole(turn.Role),
			Parts: []llms.ContentPart{llms.TextContent{Text: turn.Content}},
		})
	}
	return messages
}

func roleFromMessageType(role llms.ChatMessageType) Role {
	switch role {
	case llms.ChatMessageTypeSystem:
		return RoleSystem
	case llms.ChatMessageTypeAI:
		return RoleAssistant
	case llms.ChatMessageTypeTool, llms.ChatMessageTypeFunction:
		return RoleTool
	default:
		return RoleUser
	}
}

func messageTypeFromRole(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}
