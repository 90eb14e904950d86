package ir

// ConditionFailure records a guard that evaluated false for one
// candidate execution. It is data, not an error.
type ConditionFailure struct {
	Condition string `json:"condition"`
	Hint      string `json:"hint,omitempty"`
}

// RuleOutput is the record of one executed or attempted rule invocation.
//
// Exactly one of ConditionFailures and Tags is non-empty for a rule
// whose guards ran, except for a SINGLE action that returned nothing.
type RuleOutput struct {
	Seq               int64              `json:"seq"`
	Rule              string             `json:"rule"`
	TagType           string             `json:"tag_type"`
	InputTags         []TagID            `json:"input_tags"`
	ConditionFailures []ConditionFailure `json:"condition_failures,omitempty"`
	Tags              []TagID            `json:"tags,omitempty"`
}

// Failed reports whether a guard rejected the execution.
func (o RuleOutput) Failed() bool {
	return len(o.ConditionFailures) > 0
}
