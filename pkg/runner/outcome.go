package runner

// outcomeKind classifies what a node execution means for the branch that
// reached it.
type outcomeKind int

const (
	// outcomeContinue proceeds along the node's outgoing edges.
	outcomeContinue outcomeKind = iota
	// outcomeStop halts the current branch without marking it an error. Used
	// for end nodes, unmatched routing handles and late merge arrivals.
	outcomeStop
	// outcomeFail records the node in the failure list and escalates up the
	// branch unless the workflow continues on failure.
	outcomeFail
)

// outcome is the node-local traversal verdict. Failures travel as values so
// the walker can match them exhaustively instead of unwinding panics.
type outcome struct {
	kind   outcomeKind
	reason string
}

func continueOutcome() outcome {
	return outcome{kind: outcomeContinue}
}

func stopOutcome() outcome {
	return outcome{kind: outcomeStop}
}

func failOutcome(reason string) outcome {
	return outcome{kind: outcomeFail, reason: reason}
}

func (o outcome) failed() bool {
	return o.kind == outcomeFail
}
