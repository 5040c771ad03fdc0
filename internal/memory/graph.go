package memory

// GraphNode is one vertex of the subject's relationship graph.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Self  bool   `json:"self"`
}

// GraphEdge is one directed edge, derived 1:1 from a Relation.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Graph is the renderable projection of a subject's relations.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// BuildGraph derives a node/edge view from relationship facts. Nodes are
// deduplicated by ID while preserving first-seen order; the node matching the
// subject identifier is flagged and relabeled so the UI can highlight it.
func BuildGraph(relations []Relation, subject string) Graph {
	g := Graph{
		Nodes: make([]GraphNode, 0, len(relations)*2),
		Edges: make([]GraphEdge, 0, len(relations)),
	}
	seen := make(map[string]struct{}, len(relations)*2)

	addNode := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		node := GraphNode{ID: id, Label: id}
		if id == subject {
			node.Self = true
			node.Label = "You"
		}
		g.Nodes = append(g.Nodes, node)
	}

	for _, r := range relations {
		addNode(r.Source)
		addNode(r.Target)
		g.Edges = append(g.Edges, GraphEdge{
			Source: r.Source,
			Target: r.Target,
			Label:  r.Relationship,
		})
	}
	return g
}
