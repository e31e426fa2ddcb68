package routing

import (
	"strings"

	"github.com/pleiades-agents/pleiades/internal/agent"
)

// Score returns the keyword score of def for task. Each distinct keyword phrase
// that occurs in the task, ignoring case, contributes its word count.
func Score(def *agent.Definition, task string) int {
	score, _ := match(def, normalize(task))
	return score
}

// MatchedKeywords returns the keyword phrases of def occurring in task, in
// declared order.
func MatchedKeywords(def *agent.Definition, task string) []string {
	_, matched := match(def, normalize(task))
	return matched
}

func normalize(s string) string {
	return strings.ToLower(s)
}

// match scores def against an already normalized task.
func match(def *agent.Definition, task string) (int, []string) {
	var (
		score   int
		matched []string
		seen    = make(map[string]bool, len(def.Keywords))
	)
	for _, kw := range def.Keywords {
		phrase := normalize(kw)
		if strings.TrimSpace(phrase) == "" || seen[phrase] {
			continue
		}
		seen[phrase] = true
		if strings.Contains(task, phrase) {
			score += len(strings.Fields(phrase))
			matched = append(matched, kw)
		}
	}
	return score, matched
}
