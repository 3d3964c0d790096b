package main

import (
	"reflect"
	"testing"
	"time"
)

func TestComputeResultsTwoLikesScenario(t *testing.T) {
	reg := newSessionRegistry(9, time.Second)
	identities := newIdentityRegistry()
	authorA := identities.create("conn-a", "alice")
	authorB := identities.create("conn-b", "bob")

	s := reg.create(authorA, false)
	if err := reg.join(s, authorB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reg.upsertChoice(s, authorA.ID, 1, "gifA")
	reg.upsertChoice(s, authorB.ID, 1, "gifB")
	reg.upsertLike(s, authorB.ID, authorA.ID, 1, "gifB")
	reg.upsertLike(s, authorB.ID, authorB.ID, 1, "gifB")

	results := computeResults(s, 3)

	if len(results) != 1 {
		t.Fatalf("want one result, got %d: %+v", len(results), results)
	}
	got := results[0]
	if got.AuthorID != authorB.ID || got.AuthorName != "bob" {
		t.Fatalf("want author bob, got %+v", got)
	}
	if got.LikeCount != 2 || got.TotalPoints != 200 {
		t.Fatalf("want 2 likes and 200 points, got %+v", got)
	}
	if got.Round != 1 || got.GifURL != "gifB" {
		t.Fatalf("unexpected round or gif: %+v", got)
	}
}

func TestComputeResultsRanking(t *testing.T) {
	reg := newSessionRegistry(9, time.Second)
	identities := newIdentityRegistry()
	alice := identities.create("conn-a", "alice")
	bob := identities.create("conn-b", "bob")
	carol := identities.create("conn-c", "carol")

	s := reg.create(alice, false)
	if err := reg.join(s, bob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.join(s, carol); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Round 1: bob gets two likes, alice one. Round 2: carol gets one.
	reg.upsertLike(s, bob.ID, alice.ID, 1, "gifB")
	reg.upsertLike(s, bob.ID, carol.ID, 1, "gifB")
	reg.upsertLike(s, alice.ID, bob.ID, 1, "gifA")
	reg.upsertLike(s, carol.ID, alice.ID, 2, "gifC")

	results := computeResults(s, 3)

	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d: %+v", len(results), results)
	}
	if results[0].AuthorID != bob.ID {
		t.Fatalf("want bob ranked first, got %+v", results[0])
	}
	if results[0].LikeCount != 2 || results[0].TotalPoints != 200 {
		t.Fatalf("unexpected winner tally: %+v", results[0])
	}
	for _, r := range results[1:] {
		if r.LikeCount != 1 || r.TotalPoints != 100 {
			t.Fatalf("unexpected runner-up tally: %+v", r)
		}
	}
}

func TestComputeResultsIsDeterministic(t *testing.T) {
	reg := newSessionRegistry(9, time.Second)
	identities := newIdentityRegistry()
	alice := identities.create("conn-a", "alice")
	bob := identities.create("conn-b", "bob")

	s := reg.create(alice, false)
	if err := reg.join(s, bob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same like count and points for both authors: ordering must still be
	// stable across calls despite map iteration.
	reg.upsertLike(s, alice.ID, bob.ID, 1, "gifA")
	reg.upsertLike(s, bob.ID, alice.ID, 1, "gifB")
	reg.upsertLike(s, alice.ID, bob.ID, 2, "gifA2")
	reg.upsertLike(s, bob.ID, alice.ID, 3, "gifB3")

	first := computeResults(s, 3)
	for i := 0; i < 16; i++ {
		if got := computeResults(s, 3); !reflect.DeepEqual(first, got) {
			t.Fatalf("call %d differed:\nfirst: %+v\ngot:   %+v", i, first, got)
		}
	}
}

func TestComputeResultsIgnoresUnlikedChoices(t *testing.T) {
	reg := newSessionRegistry(9, time.Second)
	identities := newIdentityRegistry()
	alice := identities.create("conn-a", "alice")

	s := reg.create(alice, false)
	reg.upsertChoice(s, alice.ID, 1, "gifA")

	if results := computeResults(s, 3); len(results) != 0 {
		t.Fatalf("choices without likes produced results: %+v", results)
	}
}

func TestComputeResultsUsesIDWhenAuthorLeft(t *testing.T) {
	reg := newSessionRegistry(9, time.Second)
	identities := newIdentityRegistry()
	alice := identities.create("conn-a", "alice")
	bob := identities.create("conn-b", "bob")

	s := reg.create(alice, false)
	if err := reg.join(s, bob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reg.upsertLike(s, bob.ID, alice.ID, 1, "gifB")
	reg.leave(s, bob.ID)

	results := computeResults(s, 3)
	if len(results) != 1 {
		t.Fatalf("want one result, got %d", len(results))
	}
	if results[0].AuthorName != bob.ID {
		t.Fatalf("departed author should fall back to id, got %q", results[0].AuthorName)
	}
}
