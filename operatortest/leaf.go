package operatortest

import (
	"fmt"

	"mit.edu/dsg/vexec/planner"
)

// MultipleLeavesError reports a plan whose input path forks, so its leaf is not unique.
type MultipleLeavesError struct {
	NodeID     planner.PlanNodeID
	NumSources int
}

func (e *MultipleLeavesError) Error() string {
	return fmt.Sprintf("plan node %s has %d sources; name the leaf of each split explicitly", e.NodeID, e.NumSources)
}

// OnlyLeafPlanNodeID follows the single child of each node down from root and returns the ID of the node with no
// children.
func OnlyLeafPlanNodeID(root planner.PlanNode) (planner.PlanNodeID, error) {
	node := root
	for {
		children := node.Children()
		switch len(children) {
		case 0:
			return node.ID(), nil
		case 1:
			node = children[0]
		default:
			return "", &MultipleLeavesError{NodeID: node.ID(), NumSources: len(children)}
		}
	}
}
