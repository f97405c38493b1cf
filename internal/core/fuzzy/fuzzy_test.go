package fuzzy

import "testing"

func TestRank_ExactMatchTops(t *testing.T) {
	m := NewMatcher()
	got := m.Rank("hollywood", []string{"Hollywood", "North Hollywood", "Harbor"})
	if len(got) == 0 || got[0].Candidate != "Hollywood" {
		t.Fatalf("ranked = %v", got)
	}
	if got[0].Score < 0.99 {
		t.Fatalf("exact match score = %f", got[0].Score)
	}
}

func TestRank_PrefixBoost(t *testing.T) {
	m := NewMatcher()
	got := m.Rank("holly", []string{"Hollywood"})
	if len(got) != 1 {
		t.Fatalf("ranked = %v", got)
	}
	if got[0].Score < 0.90 {
		t.Fatalf("prefix boost should floor the score at 0.90, got %f", got[0].Score)
	}
}

func TestRank_SubstringBoost(t *testing.T) {
	m := NewMatcher()
	got := m.Rank("wood", []string{"North Hollywood"})
	if len(got) != 1 {
		t.Fatalf("substring should survive the threshold: %v", got)
	}
	if got[0].Score < 0.75 || got[0].Score > 0.95 {
		t.Fatalf("substring boost out of band: %f", got[0].Score)
	}
}

func TestRank_AcronymBoost(t *testing.T) {
	m := NewMatcher()
	got := m.Rank("gta", []string{"Grand Theft Auto"})
	if len(got) != 1 {
		t.Fatalf("acronym should survive the threshold: %v", got)
	}
	if got[0].Score < 0.85 {
		t.Fatalf("acronym boost = %f", got[0].Score)
	}
}

func TestRank_ThresholdDropsWeakMatches(t *testing.T) {
	m := NewMatcher()
	got := m.Rank("hollywood", []string{"Van Nuys"})
	if len(got) != 0 {
		t.Fatalf("unrelated candidate survived: %v", got)
	}
}

func TestRank_TieOrderIsLexical(t *testing.T) {
	m := NewMatcher()
	got := m.Rank("ho", []string{"Hollywood", "Hollenbeck"})
	if len(got) != 2 {
		t.Fatalf("ranked = %v", got)
	}
	if got[0].Score == got[1].Score && got[0].Candidate > got[1].Candidate {
		t.Fatalf("ties must break on candidate text: %v", got)
	}
}

func TestRank_LimitCaps(t *testing.T) {
	m := &Matcher{Threshold: 0.0, Limit: 2}
	got := m.Rank("a", []string{"aa", "ab", "ac", "ad"})
	if len(got) != 2 {
		t.Fatalf("limit not applied: %v", got)
	}
}

func TestCosine_Identity(t *testing.T) {
	if s := Cosine("hollywood", "hollywood"); s < 0.999 {
		t.Fatalf("self similarity = %f", s)
	}
	if s := Cosine("hollywood", ""); s != 0 {
		t.Fatalf("empty similarity = %f", s)
	}
}
