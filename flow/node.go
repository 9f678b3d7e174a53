package flow

// NodeType discriminates the behavior of a workflow node.
type NodeType string

const (
	NodeStart     NodeType = "START"
	NodeEnd       NodeType = "END"
	NodeDecision  NodeType = "DECISION"
	NodeCondition NodeType = "CONDITION"
	NodeTask      NodeType = "TASK"
	NodeAction    NodeType = "ACTION"
	NodeInput     NodeType = "INPUT"
	NodeOutput    NodeType = "OUTPUT"
)

// ConditionsKey is the configuration entry that DECISION and CONDITION nodes
// must carry. Its value is a condition in any of the accepted surface forms.
const ConditionsKey = "conditions"

// Position is a node's placement on the workflow canvas.
type Position struct {
	X float64
	Y float64
}

// Node is one processing unit in a workflow graph. Its semantics are
// determined by Type; Configuration carries per-type settings such as the
// conditions of a DECISION node or the task spec of a TASK node.
type Node struct {
	ID            NodeID
	Type          NodeType
	Label         string
	Position      Position
	Configuration map[string]any
}

// Conditions returns the node's conditions configuration entry and whether
// it is present. Only meaningful for DECISION and CONDITION nodes.
func (n Node) Conditions() (any, bool) {
	if n.Configuration == nil {
		return nil, false
	}
	v, ok := n.Configuration[ConditionsKey]
	return v, ok
}

// RequiresConditions reports whether this node type must carry a conditions
// entry to be executable.
func (n Node) RequiresConditions() bool {
	return n.Type == NodeDecision || n.Type == NodeCondition
}

// cloneConfig deep-copies a configuration map one level down. Nested maps and
// slices are copied; other values are shared, which is safe because node
// configurations are treated as immutable by the engine.
func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneConfig(vv)
		case []any:
			s := make([]any, len(vv))
			copy(s, vv)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

func (n Node) clone() Node {
	n.Configuration = cloneConfig(n.Configuration)
	return n
}
