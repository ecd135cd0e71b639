package topics

import (
	"strings"
	"testing"
)

func TestAll_ReturnsCopies(t *testing.T) {
	topics := All()
	if len(topics) != 5 {
		t.Fatalf("Expected 5 topics, got %d", len(topics))
	}
	topics[0].Title = "mutated"
	if All()[0].Title == "mutated" {
		t.Error("Expected All to return a copy of the registry")
	}
}

func TestLookup(t *testing.T) {
	topic, ok := Lookup("tree-turn")
	if !ok {
		t.Fatal("Expected tree-turn to exist")
	}
	if topic.ScenarioTitle != "Cancelling Sports Day" {
		t.Errorf("Unexpected scenario title: %s", topic.ScenarioTitle)
	}

	if _, ok := Lookup("missing"); ok {
		t.Error("Expected lookup of unknown ID to fail")
	}
}

func TestSystemInstruction_ContainsScenarioAndMarkers(t *testing.T) {
	topic, _ := Lookup("benefits-drawbacks")
	instr := SystemInstruction(topic)

	for _, want := range []string{
		topic.Title,
		topic.ScenarioDescription,
		"[REQUEST_FEEDBACK]",
		"[SESSION_FINISHED]",
		"SAM STARTS",
	} {
		if !strings.Contains(instr, want) {
			t.Errorf("Expected instruction to contain %q", want)
		}
	}
	for _, te := range topic.TargetExpressions {
		if !strings.Contains(instr, te.Text) {
			t.Errorf("Expected instruction to list expression %q", te.Text)
		}
	}
}
