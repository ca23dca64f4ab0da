package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ObiAU/hfentityengine/internal/models"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain JSON unchanged", input: `{"type":"topic"}`, want: `{"type":"topic"}`},
		{name: "strips json fenced block", input: "```json\n{\"type\":\"topic\"}\n```", want: `{"type":"topic"}`},
		{name: "strips plain fenced block", input: "```\n{\"type\":\"topic\"}\n```", want: `{"type":"topic"}`},
		{name: "drops surrounding prose", input: "Sure! {\"type\":\"topic\"} Hope that helps", want: `{"type":"topic"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONResponse(tt.input))
		})
	}
}

func TestParseClassification_Project(t *testing.T) {
	d, err := parseClassification(`{"type":"project","name":"btc","brief":"Bitcoin price","confidence":0.93,"reason":"mentions $BTC","sentiment":"Positive"}`)
	require.NoError(t, err)

	p, ok := d.(ProjectDecision)
	require.True(t, ok)
	assert.Equal(t, "btc", p.Name)
	assert.Equal(t, 0.93, p.Confidence)
	assert.Equal(t, models.DirectionPositive, p.Sentiment)
}

func TestParseClassification_TopicWithoutSentiment(t *testing.T) {
	d, err := parseClassification("```json\n{\"type\":\"topic\",\"name\":\"DeFi\",\"brief\":\"yield farming\",\"confidence\":0.8,\"reason\":\"sector\"}\n```")
	require.NoError(t, err)

	tp, ok := d.(TopicDecision)
	require.True(t, ok)
	assert.Equal(t, "DeFi", tp.Name)
	assert.Equal(t, models.DirectionNeutral, tp.Sentiment)
}

func TestParseClassification_Unknown(t *testing.T) {
	d, err := parseClassification(`{"type":"unknown","name":"","brief":"","confidence":0.4,"reason":"not crypto"}`)
	require.NoError(t, err)

	u, ok := d.(UnknownDecision)
	require.True(t, ok)
	assert.Equal(t, "not crypto", u.Reason)
}

func TestParseClassification_RejectsWholesale(t *testing.T) {
	replies := map[string]string{
		"not json":           `I think this is about Bitcoin`,
		"array":              `[{"type":"project"}]`,
		"missing reason":     `{"type":"project","name":"Bitcoin","brief":"b","confidence":0.9}`,
		"missing brief":      `{"type":"topic","name":"DeFi","confidence":0.9,"reason":"r"}`,
		"string confidence":  `{"type":"project","name":"Bitcoin","brief":"b","confidence":"high","reason":"r"}`,
		"confidence above 1": `{"type":"project","name":"Bitcoin","brief":"b","confidence":1.5,"reason":"r"}`,
		"bad type":           `{"type":"coin","name":"Bitcoin","brief":"b","confidence":0.9,"reason":"r"}`,
		"empty name":         `{"type":"project","name":"  ","brief":"b","confidence":0.9,"reason":"r"}`,
		"null name":          `{"type":"topic","name":null,"brief":"b","confidence":0.9,"reason":"r"}`,
		"truncated":          `{"type":"topic","name":"DeFi","brief":"b","confidence":0.9,`,
	}

	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			d, err := parseClassification(reply)
			assert.ErrorIs(t, err, ErrNoDecision)
			assert.Nil(t, d)
		})
	}
}

func TestParseSimilarity(t *testing.T) {
	v, err := parseSimilarity(`{"is_similar":true,"confidence":0.82,"reason":"same hack"}`)
	require.NoError(t, err)
	assert.True(t, v.Accepted())

	v, err = parseSimilarity(`{"is_similar":true,"confidence":0.69,"reason":"maybe"}`)
	require.NoError(t, err)
	assert.False(t, v.Accepted(), "threshold is re-applied over the oracle's boolean")

	v, err = parseSimilarity(`{"is_similar":false,"confidence":0.95,"reason":"different"}`)
	require.NoError(t, err)
	assert.False(t, v.Accepted())

	_, err = parseSimilarity(`{"is_similar":"yes","confidence":0.95,"reason":"r"}`)
	assert.ErrorIs(t, err, ErrNoDecision)

	_, err = parseSimilarity(`{"is_similar":true,"reason":"r"}`)
	assert.ErrorIs(t, err, ErrNoDecision)
}

func TestBuildSimilarityPrompt(t *testing.T) {
	prompt, err := buildSimilarityPrompt(
		TopicDigest{Name: "Exchange hack", Brief: "Hot wallet drained", KeyEntities: "Bybit"},
		TopicDigest{Name: "Bybit exploit", Brief: "1.4B stolen", Type: "topic"},
	)
	require.NoError(t, err)

	start := len(similarityFormat + "\n\nTopics:\n")
	payload := prompt[start:]
	assert.True(t, gjson.Valid(payload))
	assert.Equal(t, "Exchange hack", gjson.Get(payload, "topic_a.name").Str)
	assert.Equal(t, "topic", gjson.Get(payload, "topic_a.type").Str)
	assert.Equal(t, "1.4B stolen", gjson.Get(payload, "topic_b.brief").Str)
	assert.False(t, gjson.Get(payload, "topic_a.observed_at").Exists())
}
