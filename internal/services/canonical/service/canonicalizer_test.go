package service

import (
	"testing"

	"nqlc/internal/services/canonical/domain"
)

func loadedCanonicalizer() *Canonicalizer {
	c := NewCanonicalizer()
	c.Load(domain.Mappings{
		"area": {
			"holywood": {Canonical: "Hollywood", Score: 0.92},
		},
	}, 7)
	return c
}

func TestCanonicalizer_ResolveHit(t *testing.T) {
	c := loadedCanonicalizer()
	res := c.Resolve("area", "Holywood")
	if !res.Applied {
		t.Fatalf("resolution = %+v", res)
	}
	if res.Value != "Hollywood" || res.Canonical != "Hollywood" {
		t.Fatalf("resolution = %+v", res)
	}
	if res.Synonym != "Holywood" {
		t.Fatalf("synonym should keep the trimmed original: %+v", res)
	}
}

func TestCanonicalizer_ResolveMissPassesThrough(t *testing.T) {
	c := loadedCanonicalizer()
	res := c.Resolve("area", "Van Nuys")
	if res.Applied || res.Value != "Van Nuys" {
		t.Fatalf("resolution = %+v", res)
	}
}

func TestCanonicalizer_LikeBypass(t *testing.T) {
	c := loadedCanonicalizer()
	res := c.Resolve("area", "%holly%")
	if !res.LikeBypass {
		t.Fatalf("wildcard must bypass resolution: %+v", res)
	}
	if res.Applied || res.Value != "%holly%" {
		t.Fatalf("pattern value must pass through untouched: %+v", res)
	}
}

func TestCanonicalizer_NonStringPassesThrough(t *testing.T) {
	c := loadedCanonicalizer()
	res := c.Resolve("vict_age", 42)
	if res.Applied || res.LikeBypass || res.Value != 42 {
		t.Fatalf("resolution = %+v", res)
	}
}

func TestCanonicalizer_LoadSwapsGeneration(t *testing.T) {
	c := NewCanonicalizer()
	if c.Version() != 0 {
		t.Fatalf("fresh cache version = %d", c.Version())
	}
	c.Load(domain.Mappings{"area": {"nh": {Canonical: "North Hollywood"}}}, 3)
	if c.Version() != 3 {
		t.Fatalf("version = %d", c.Version())
	}
	if res := c.Resolve("area", "NH"); !res.Applied || res.Value != "North Hollywood" {
		t.Fatalf("resolution after load = %+v", res)
	}

	c.Load(domain.Mappings{}, 4)
	if res := c.Resolve("area", "NH"); res.Applied {
		t.Fatalf("stale entry survived the swap: %+v", res)
	}
}
