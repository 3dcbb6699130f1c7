package issue

import "testing"

func TestTopKeywords_FiltersStopWordsAndShortTokens(t *testing.T) {
	texts := []string{
		"the new hospital clinic opens for the capital region",
		"hospital staff report hospital shortages across the clinic network",
	}
	top := TopKeywords(texts, 3)
	if len(top) == 0 {
		t.Fatal("expected at least one keyword")
	}
	if top[0] != "hospital" {
		t.Errorf("expected 'hospital' to be the top keyword, got %q", top[0])
	}
	for _, w := range top {
		if stopWords[w] || len(w) <= 3 {
			t.Errorf("unexpected stop-word or short token in result: %q", w)
		}
	}
}

func TestTopSources_RanksByFrequency(t *testing.T) {
	labels := []string{"twitter", "twitter", "news", "twitter", "forum"}
	top := TopSources(labels, 2)
	if len(top) != 2 || top[0] != "twitter" {
		t.Fatalf("expected twitter first, got %v", top)
	}
}

func TestRegionsImpacted_DeduplicatesAndCaps(t *testing.T) {
	locs := []string{"north", "", "south", "north", "east", "west", "central"}
	regions := RegionsImpacted(locs, 3)
	if len(regions) != 3 {
		t.Fatalf("expected 3 regions, got %d: %v", len(regions), regions)
	}
	if regions[0] != "north" || regions[1] != "south" || regions[2] != "east" {
		t.Errorf("expected first-seen order, got %v", regions)
	}
}
