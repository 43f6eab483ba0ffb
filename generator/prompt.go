package generator

import (
	"fmt"
	"strings"

	"autopost/post"
)

// Prompt is the message set sent to the LLM. Platform and Tone travel with it
// so offline clients can pick a canned response.
type Prompt struct {
	System    string
	User      string
	History   []Message
	MaxTokens int64
	Platform  post.Platform
	Tone      Tone
}

// Message is one prior turn.
type Message struct {
	Role    string
	Content string
}

// BuildInitialPrompt builds the first-draft prompt.
func BuildInitialPrompt(req TextRequest) Prompt {
	return Prompt{
		System:    systemPrompt(req),
		User:      fmt.Sprintf("Write a %s social media post for %s about: %s. Keep it under %d characters.", req.Tone, req.Platform, req.Prompt, req.MaxLength),
		MaxTokens: req.maxTokens(),
		Platform:  req.Platform,
		Tone:      req.Tone,
	}
}

// BuildRevisionPrompt asks for a minimal rewrite of prev following comment.
func BuildRevisionPrompt(req TextRequest, prev Draft, comment string, history []Turn) Prompt {
	var sb strings.Builder
	sb.WriteString(systemPrompt(req))
	sb.WriteString("\nYou are revising an existing post based on feedback:\n")
	sb.WriteString("- Change only what the feedback asks for.\n")
	sb.WriteString(fmt.Sprintf("- Stay under %d characters.\n", req.MaxLength))
	sb.WriteString("- Reply with the post text only, no explanations.\n")

	user := fmt.Sprintf("Current post:\n%s\n\nFeedback: %s\nReply with the revised post.", prev.Content, comment)

	var msgs []Message
	for _, t := range history {
		if t.Comment == "" {
			continue
		}
		msgs = append(msgs, Message{Role: "user", Content: t.Comment})
	}

	return Prompt{
		System:    sb.String(),
		User:      user,
		History:   msgs,
		MaxTokens: req.maxTokens(),
		Platform:  req.Platform,
		Tone:      req.Tone,
	}
}

func systemPrompt(req TextRequest) string {
	return fmt.Sprintf("You are an expert social media content creator. Write content for %s in a %s tone.", req.Platform, req.Tone)
}
