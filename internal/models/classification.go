package models

type ContentType string

const (
	ContentProject ContentType = "project"
	ContentTopic   ContentType = "topic"
	ContentUnknown ContentType = "unknown"
)

// ClassificationResult drives the orchestrator and is never persisted.
type ClassificationResult struct {
	ContentType  ContentType `json:"content_type"`
	EntityID     string      `json:"entity_id,omitempty"`
	EntityName   string      `json:"entity_name,omitempty"`
	Confidence   float64     `json:"confidence"`
	Reason       string      `json:"reason"`
	IsNewCreated bool        `json:"is_new_created"`
}

func Unknown(reason string) ClassificationResult {
	return ClassificationResult{ContentType: ContentUnknown, Reason: reason}
}

func (r ClassificationResult) Resolved() bool {
	return r.ContentType != ContentUnknown && r.EntityID != ""
}

func (r ClassificationResult) Ref() EntityRef {
	kind := KindTopic
	if r.ContentType == ContentProject {
		kind = KindProject
	}
	return EntityRef{Kind: kind, ID: r.EntityID}
}
