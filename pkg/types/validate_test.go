package types

import (
	"testing"
	"time"
)

func TestValidateNew_SkipsGeneratedID(t *testing.T) {
	m := Mention{
		Text:             "hospital capacity strained",
		PublishedAt:      time.Now(),
		Platform:         "twitter",
		SourceType:       SourceCitizen,
		OwningOperatorID: "operator-1",
	}
	if err := ValidateNew(m, "ID"); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateNew_StillCatchesMissingRequiredField(t *testing.T) {
	m := Mention{
		PublishedAt: time.Now(),
		SourceType:  SourceCitizen,
	}
	if err := ValidateNew(m, "ID"); err == nil {
		t.Fatal("expected validation error for missing required fields")
	}
}

func TestValidate_RejectsOutOfRangeScore(t *testing.T) {
	score := 250.0
	agg := SentimentAggregation{
		AggregationType: AggregationTopic,
		AggregationKey:  "healthcare",
		TimeWindow:      Window24h,
		SentimentIndex:  score,
	}
	if err := Validate(agg); err == nil {
		t.Fatal("expected validation error for out-of-range sentiment index")
	}
}
