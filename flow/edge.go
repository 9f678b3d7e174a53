package flow

// EdgeType classifies the role of a transition between two nodes.
//
// Routing at DECISION and CONDITION nodes keys off EdgeConditionalTrue and
// EdgeConditionalFalse; every other type is treated uniformly by the router's
// declaration-order fallback.
type EdgeType string

const (
	EdgeDefault          EdgeType = "DEFAULT"
	EdgeConditionalTrue  EdgeType = "CONDITIONAL_TRUE"
	EdgeConditionalFalse EdgeType = "CONDITIONAL_FALSE"
	EdgeSuccess          EdgeType = "SUCCESS"
	EdgeError            EdgeType = "ERROR"
	EdgeDataFlow         EdgeType = "DATA_FLOW"
	EdgeControlFlow      EdgeType = "CONTROL_FLOW"
)

// Edge is a directed connection between two nodes of the same workflow.
// Self-loops (Source == Target) are rejected by the aggregate.
type Edge struct {
	ID     EdgeID
	Source NodeID
	Target NodeID
	Label  string
	Type   EdgeType
}
