package types

// KeywordGroup is an AND/OR boolean grouping over a topic's keywords,
// evaluated by the Topic Classifier's keyword-group rules (spec 4.2).
type KeywordGroup struct {
	Operator string   `json:"operator" validate:"required,oneof=AND OR"`
	Terms    []string `json:"terms" validate:"required,min=1,dive,required"`
}

// Topic is a governance category the Topic Classifier scores mentions
// against.
type Topic struct {
	Key           string         `db:"key" json:"key" validate:"required"`
	DisplayName   string         `db:"display_name" json:"display_name" validate:"required"`
	Description   string         `db:"description" json:"description"`
	Keywords      []string       `db:"-" json:"keywords"`
	KeywordGroups []KeywordGroup `db:"-" json:"keyword_groups,omitempty"`
	Embedding     []float64      `db:"-" json:"embedding,omitempty"`
	Active        bool           `db:"active" json:"active"`
	Category      *string        `db:"category" json:"category,omitempty"`
}

// EmbeddingSeedText builds the text the Topic Registry feeds to the
// Embedding Provider to generate a topic's embedding, per spec 4.2:
// "display_name + description + keywords.join(' ')".
func (t *Topic) EmbeddingSeedText() string {
	text := t.DisplayName + " " + t.Description
	if len(t.Keywords) > 0 {
		text += " "
		for i, k := range t.Keywords {
			if i > 0 {
				text += " "
			}
			text += k
		}
	}
	const maxLen = 8000
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}

// TopicScore is one scored candidate topic for a mention, as produced by
// the Topic Classifier.
type TopicScore struct {
	TopicKey       string  `json:"topic_key"`
	TopicName      string  `json:"topic_name"`
	Confidence     float64 `json:"confidence"`
	KeywordScore   float64 `json:"keyword_score"`
	EmbeddingScore float64 `json:"embedding_score"`
}

// NonGovernanceTopicKey is the pseudo-topic assigned when no topic clears
// the classifier's threshold; the mention still receives sentiment
// analysis.
const NonGovernanceTopicKey = "non_governance"

// MentionTopic is the many-to-many link between a Mention and a Topic.
type MentionTopic struct {
	MentionID      string  `db:"mention_id" json:"mention_id" validate:"required,uuid"`
	TopicKey       string  `db:"topic_key" json:"topic_key" validate:"required"`
	Confidence     float64 `db:"confidence" json:"confidence" validate:"gte=0,lte=1"`
	KeywordScore   float64 `db:"keyword_score" json:"keyword_score" validate:"gte=0,lte=1"`
	EmbeddingScore float64 `db:"embedding_score" json:"embedding_score" validate:"gte=0,lte=1"`
	IssueID        *string `db:"issue_id" json:"issue_id,omitempty"`
}
