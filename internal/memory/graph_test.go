package memory

import "testing"

func TestBuildGraphDeduplicatesNodes(t *testing.T) {
	relations := []Relation{
		{Source: "u1", Relationship: "lives_in", Target: "paris"},
		{Source: "u1", Relationship: "likes", Target: "blue"},
		{Source: "paris", Relationship: "located_in", Target: "france"},
	}

	g := BuildGraph(relations, "u1")

	if len(g.Edges) != 3 {
		t.Fatalf("len(edges) = %d, want 3 (one per relation)", len(g.Edges))
	}
	if len(g.Nodes) != 4 {
		t.Fatalf("len(nodes) = %d, want 4 (u1, paris, blue, france)", len(g.Nodes))
	}
}

func TestBuildGraphHighlightsSelfNode(t *testing.T) {
	g := BuildGraph([]Relation{
		{Source: "u1", Relationship: "likes", Target: "blue"},
	}, "u1")

	var self *GraphNode
	for i := range g.Nodes {
		if g.Nodes[i].ID == "u1" {
			self = &g.Nodes[i]
		}
	}
	if self == nil {
		t.Fatalf("subject node missing from graph")
	}
	if !self.Self || self.Label != "You" {
		t.Fatalf("self node = %+v, want Self=true Label=You", *self)
	}

	for _, n := range g.Nodes {
		if n.ID != "u1" && n.Self {
			t.Fatalf("node %q should not be flagged as self", n.ID)
		}
	}
}

func TestBuildGraphEmptyRelations(t *testing.T) {
	g := BuildGraph(nil, "u1")
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Fatalf("graph = %+v, want empty", g)
	}
}
