package services

import "strings"

// retrievalKeywords triggers document search when any of them appears in the
// user message. Substring match, case-insensitive.
var retrievalKeywords = []string{
	"find", "search", "what", "how", "when", "where",
	"document", "file", "procedure", "manual", "guide", "instruction",
}

// ShouldRetrieve decides whether a message warrants hitting the chunk store.
// Kept as a pure function so the heuristic can be swapped for a classifier
// without touching the orchestration.
func ShouldRetrieve(message string) bool {
	m := strings.ToLower(message)
	for _, kw := range retrievalKeywords {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// FallbackTopic selects which templated answer substitutes for a failed
// completion call.
type FallbackTopic string

const (
	TopicTask     FallbackTopic = "task"
	TopicSearch   FallbackTopic = "search"
	TopicHelp     FallbackTopic = "help"
	TopicProblem  FallbackTopic = "problem"
	TopicGreeting FallbackTopic = "greeting"
)

var topicKeywords = []struct {
	topic FallbackTopic
	words []string
}{
	{TopicTask, []string{"task", "assign", "schedule", "deadline", "work order"}},
	{TopicSearch, []string{"search", "find", "document", "file", "manual", "procedure"}},
	{TopicHelp, []string{"help", "how"}},
	{TopicProblem, []string{"problem", "error", "issue", "broken", "fail"}},
}

// DetectFallbackTopic maps a user message to a fallback template. First
// matching category wins; anything else gets the greeting menu.
func DetectFallbackTopic(message string) FallbackTopic {
	m := strings.ToLower(message)
	for _, tk := range topicKeywords {
		for _, w := range tk.words {
			if strings.Contains(m, w) {
				return tk.topic
			}
		}
	}
	return TopicGreeting
}
