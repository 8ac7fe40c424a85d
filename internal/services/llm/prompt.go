package llm

import (
	"fmt"
	"strings"
)

// Prompt construction lives here so the string contract with the model is
// in one place, with typed slots instead of ad-hoc concatenation.

const classifySystemPrompt = `You classify stock-market questions. Respond with ONLY a JSON object, no prose, shaped exactly like:
{"intent":"price_forecast|sentiment|news_summary|portfolio_insight|general","confidence":0.0,"entities":{"symbol":"AAPL","timeframe":"next_day|next_week|next_month|next_year","action":"forecast|analyze|summarize"}}
Omit entity fields you cannot extract. Symbols are 2-5 uppercase letters.`

// ClassifyPrompt builds the intent-classification exchange for a message.
func ClassifyPrompt(message string) []Message {
	return []Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: message},
	}
}

const generateSystemPrompt = `You are a helpful stock-market assistant for a trading simulation platform. Answer concisely in the user's language. Base your answer strictly on the provided data context when present; do not invent prices or news. If the context is empty, answer from general knowledge about markets without fabricating figures.`

// GeneratePrompt builds the answer-generation exchange. contextBlock is the
// plain-text digest of handler results; it may be empty.
func GeneratePrompt(message, contextBlock string) []Message {
	userContent := message
	if contextBlock != "" {
		userContent = fmt.Sprintf("Data context:\n%s\n\nQuestion: %s", contextBlock, message)
	}
	return []Message{
		{Role: "system", Content: generateSystemPrompt},
		{Role: "user", Content: userContent},
	}
}

// FirstJSONObject extracts the first balanced JSON object substring from
// model output. Models wrap JSON in prose or code fences often enough that
// strict unmarshaling of the whole reply is useless.
func FirstJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
