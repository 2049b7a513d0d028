package ai

import (
	"context"
	"fmt"
	"strings"
)

const classifierSystem = `You classify replies from real-estate and mortgage professionals being recruited by a brokerage.
Answer with exactly one word: YES if the reply meets any of the criteria, otherwise NO.`

// Classifier answers ai_analyze conditions with a YES/NO model call.
type Classifier struct {
	model *Model
}

// NewClassifier creates a classifier on model.
func NewClassifier(model *Model) *Classifier {
	return &Classifier{model: model}
}

// Classify reports whether response meets any of criteria. With no criteria
// the reply is judged for positive interest.
func (c *Classifier) Classify(ctx context.Context, response string, criteria []string) (bool, error) {
	var list []string
	for _, cr := range criteria {
		if s := strings.TrimSpace(cr); s != "" {
			list = append(list, "- "+s)
		}
	}
	if len(list) == 0 {
		list = []string{"- the person shows interest in learning more or talking"}
	}
	prompt := fmt.Sprintf("Criteria:\n%s\n\nReply:\n%q\n\nDoes the reply meet any criterion?", strings.Join(list, "\n"), response)

	answer, err := c.model.Complete(ctx, classifierSystem, prompt, 5, 0)
	if err != nil {
		return false, err
	}
	return parseVerdict(answer)
}

func parseVerdict(answer string) (bool, error) {
	a := strings.ToUpper(strings.Trim(strings.TrimSpace(answer), ".!\"'"))
	switch {
	case strings.HasPrefix(a, "YES"):
		return true, nil
	case strings.HasPrefix(a, "NO"):
		return false, nil
	}
	return false, fmt.Errorf("unexpected classifier answer %q", answer)
}
