package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/sjson"
)

const classificationSystemPrompt = `You are a crypto market analyst. Decide what a short social media post is about.

- "project": the post is mainly about one specific tradable project or coin (Bitcoin, Ethereum, Solana, a token launch).
- "topic": the post is about a market trend, narrative, sector or event rather than a single project (DeFi, Layer 2, ETF approvals, a hack).
- "unknown": the post is not about crypto, is spam, or carries no identifiable subject.

Use the shortest common name for the subject ("Bitcoin", "DeFi", "Layer 2").`

const classificationFormat = `Respond with JSON only:
{"type": "project|topic|unknown", "name": "subject name", "brief": "one sentence description", "confidence": 0.0-1.0, "reason": "brief explanation", "sentiment": "positive|negative|neutral"}`

const similaritySystemPrompt = `You judge whether two crypto topics describe the same real-world event.

Treat them as the same event when any of these hold:
1. Same subject, same kind of event, and close in time.
2. At least 70% of their key terms overlap.
3. The wording is nearly identical.

Different events about the same project are NOT the same event.`

const similarityFormat = `Respond with JSON only: {"is_similar": true/false, "confidence": 0.0-1.0, "reason": "brief explanation"}`

const maxPostChars = 2000

func buildClassificationPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString(classificationFormat)
	sb.WriteString("\n\nPost:\n")
	sb.WriteString(truncate(strings.TrimSpace(text), maxPostChars))
	sb.WriteString("\n")
	return sb.String()
}

// TopicDigest is what the oracle sees of a topic when comparing two of them.
type TopicDigest struct {
	Name        string
	Brief       string
	KeyEntities string
	Type        string
	ObservedAt  time.Time
}

func buildSimilarityPrompt(a, b TopicDigest) (string, error) {
	payload, err := setDigest("{}", "topic_a", a)
	if err != nil {
		return "", err
	}
	if payload, err = setDigest(payload, "topic_b", b); err != nil {
		return "", err
	}
	return similarityFormat + "\n\nTopics:\n" + payload + "\n", nil
}

func setDigest(payload, key string, t TopicDigest) (string, error) {
	typ := t.Type
	if typ == "" {
		typ = "topic"
	}
	values := map[string]string{
		"name":         t.Name,
		"brief":        t.Brief,
		"key_entities": t.KeyEntities,
		"type":         typ,
	}
	if !t.ObservedAt.IsZero() {
		values["observed_at"] = t.ObservedAt.UTC().Format(time.RFC3339)
	}

	var err error
	for _, field := range []string{"name", "brief", "key_entities", "type", "observed_at"} {
		v, ok := values[field]
		if !ok {
			continue
		}
		if payload, err = sjson.Set(payload, key+"."+field, v); err != nil {
			return "", fmt.Errorf("build similarity payload: %w", err)
		}
	}
	return payload, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
