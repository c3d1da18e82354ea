// Package route selects the next node(s) of a run: decision nodes evaluate
// ordered conditions under an evaluation mode, handoff nodes pick a target
// agent by strategy (expertise, load, round-robin, conditional, manual) and
// decide how much execution context travels with the handoff.
package route
