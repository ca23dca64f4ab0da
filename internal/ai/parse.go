package ai

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ObiAU/hfentityengine/internal/models"
)

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// models sometimes wrap the object in prose
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

func parseObject(raw string) (gjson.Result, error) {
	content := cleanJSONResponse(raw)
	if content == "" || !gjson.Valid(content) {
		return gjson.Result{}, fmt.Errorf("%w: reply is not valid JSON", ErrNoDecision)
	}
	obj := gjson.Parse(content)
	if !obj.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: reply is not a JSON object", ErrNoDecision)
	}
	return obj, nil
}

func requireKind(obj gjson.Result, key string, kinds ...gjson.Type) (gjson.Result, error) {
	v := obj.Get(key)
	if !v.Exists() {
		return v, fmt.Errorf("%w: missing %q", ErrNoDecision, key)
	}
	for _, k := range kinds {
		if v.Type == k {
			return v, nil
		}
	}
	return v, fmt.Errorf("%w: %q has wrong type", ErrNoDecision, key)
}

func requireConfidence(obj gjson.Result) (float64, error) {
	v, err := requireKind(obj, "confidence", gjson.Number)
	if err != nil {
		return 0, err
	}
	if v.Num < 0 || v.Num > 1 {
		return 0, fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrNoDecision, v.Num)
	}
	return v.Num, nil
}

// parseClassification rejects partially populated replies outright.
func parseClassification(raw string) (Decision, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	typ, err := requireKind(obj, "type", gjson.String)
	if err != nil {
		return nil, err
	}
	name, err := requireKind(obj, "name", gjson.String)
	if err != nil {
		return nil, err
	}
	brief, err := requireKind(obj, "brief", gjson.String)
	if err != nil {
		return nil, err
	}
	reason, err := requireKind(obj, "reason", gjson.String)
	if err != nil {
		return nil, err
	}
	confidence, err := requireConfidence(obj)
	if err != nil {
		return nil, err
	}

	mention := Mention{
		Name:       strings.TrimSpace(name.Str),
		Brief:      strings.TrimSpace(brief.Str),
		Confidence: confidence,
		Reason:     reason.Str,
		Sentiment:  models.DirectionNeutral,
	}
	if s := obj.Get("sentiment"); s.Type == gjson.String {
		if d, ok := models.ParseDirection(s.Str); ok {
			mention.Sentiment = d
		}
	}

	switch strings.ToLower(strings.TrimSpace(typ.Str)) {
	case string(models.ContentProject):
		if mention.Name == "" {
			return nil, fmt.Errorf("%w: project without a name", ErrNoDecision)
		}
		return ProjectDecision{Mention: mention}, nil
	case string(models.ContentTopic):
		if mention.Name == "" {
			return nil, fmt.Errorf("%w: topic without a name", ErrNoDecision)
		}
		return TopicDecision{Mention: mention}, nil
	case string(models.ContentUnknown):
		return UnknownDecision{Reason: reason.Str, Confidence: confidence}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected type %q", ErrNoDecision, typ.Str)
	}
}

func parseSimilarity(raw string) (SimilarityVerdict, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return SimilarityVerdict{}, err
	}

	similar, err := requireKind(obj, "is_similar", gjson.True, gjson.False)
	if err != nil {
		return SimilarityVerdict{}, err
	}
	reason, err := requireKind(obj, "reason", gjson.String)
	if err != nil {
		return SimilarityVerdict{}, err
	}
	confidence, err := requireConfidence(obj)
	if err != nil {
		return SimilarityVerdict{}, err
	}

	return SimilarityVerdict{
		IsSimilar:  similar.Bool(),
		Confidence: confidence,
		Reason:     reason.Str,
	}, nil
}
