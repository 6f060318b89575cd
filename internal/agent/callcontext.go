package agent

import "sync"

// CallContext is the per-call scratch state a tool handler may need, such
// as the security gate's unlock failure counter. One CallContext is created
// per call by the supervisor and discarded at teardown; it is never shared
// across calls.
type CallContext struct {
	CallID       string
	CallerIDName string
	CallerIDNum  string

	mu           sync.Mutex
	gateFailures int
}

// NewCallContext builds the scratch state for one call.
func NewCallContext(callID, callerIDName, callerIDNum string) *CallContext {
	return &CallContext{CallID: callID, CallerIDName: callerIDName, CallerIDNum: callerIDNum}
}

// IncrementGateFailures bumps the security gate's per-call failure counter
// and returns the new value.
func (c *CallContext) IncrementGateFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gateFailures++
	return c.gateFailures
}

// GateFailures returns the current failure count without mutating it.
func (c *CallContext) GateFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateFailures
}
