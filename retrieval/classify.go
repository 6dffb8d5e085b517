package retrieval

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/yeojin-kim/docrag/llm"
)

// smalltalkPattern matches greetings, thanks, farewells, self-introduction,
// and help requests across English and Korean (§4.7 step A, property P11).
var smalltalkPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|bye|goodbye|who are you|what can you do|help|안녕|안녕하세요|고마워|감사합니다|잘가|누구야|뭐 할 수 있어)\W*\s*$`)

// IsSmalltalk reports whether question matches the smalltalk shortcut
// pattern, bypassing retrieval regardless of index contents (P11).
func IsSmalltalk(question string) bool {
	return smalltalkPattern.MatchString(strings.TrimSpace(question))
}

// tableKeywordPattern matches multilingual table-intent keywords, letting
// the classifier skip a network call (§4.8 step 1).
var tableKeywordPattern = regexp.MustCompile(`(?i)(table|row|column|spreadsheet|표|행|열|테이블)`)

const classifierTimeout = 5 * time.Second

// classify decides plain vs table sub-intent for document mode (§4.8).
// A table-keyword match short-circuits the network call; otherwise a
// one-shot, temperature=0, ~10-token classification request is issued,
// defaulting to "plain" on timeout.
func (c *Core) classify(ctx context.Context, question string) (string, error) {
	if tableKeywordPattern.MatchString(question) {
		return "table", nil
	}

	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	resp, err := c.Generator.Chat(cctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Classify the user's question as exactly one word: plain or table. Respond with only that word."},
			{Role: "user", Content: question},
		},
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		return "plain", nil
	}
	if strings.Contains(strings.ToLower(resp.Content), "table") {
		return "table", nil
	}
	return "plain", nil
}
