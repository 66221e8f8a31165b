package workflow

import (
	"fmt"
	"sort"
)

// Builder collects permitted transitions and produces an immutable Table
type Builder interface {
	// Configure returns the transition configuration for the given source state
	Configure(state State) StateConfiguration

	// Build freezes the configured transitions
	Build() *Table
}

// StateConfiguration configures transitions out of a specific state
type StateConfiguration interface {
	// Permit allows a trigger to move the source state to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitReentry allows a trigger to leave the state unchanged.
	// Used for reports that may be delivered more than once.
	PermitReentry(trigger Trigger) StateConfiguration
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger]State
}

type builder struct {
	configurations map[State]*stateConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() Builder {
	return &builder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns the configuration for a state, creating it on first use
func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger]State),
		}
		b.configurations[state] = config
	}

	return config
}

// Build copies the configured transitions into a Table
func (b *builder) Build() *Table {
	transitions := make(map[State]map[Trigger]State, len(b.configurations))
	for state, config := range b.configurations {
		byTrigger := make(map[Trigger]State, len(config.transitions))
		for trigger, to := range config.transitions {
			byTrigger[trigger] = to
		}
		transitions[state] = byTrigger
	}
	return &Table{transitions: transitions}
}

// Permit allows a trigger to move to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if existing, ok := c.transitions[trigger]; ok && existing != toState {
		panic(fmt.Sprintf("trigger %s from %s already leads to %s", trigger, c.fromState, existing))
	}

	c.transitions[trigger] = toState
	return c
}

// PermitReentry allows a trigger to keep the current state
func (c *stateConfig) PermitReentry(trigger Trigger) StateConfiguration {
	return c.Permit(trigger, c.fromState)
}

// Table is an immutable set of permitted transitions
type Table struct {
	transitions map[State]map[Trigger]State
}

// Next returns the state reached by firing trigger in state from
func (t *Table) Next(from State, trigger Trigger) (State, error) {
	byTrigger, exists := t.transitions[from]
	if !exists {
		return from, fmt.Errorf("%w: cannot fire trigger %s from state %s (no configuration)", ErrInvalidTransition, trigger, from)
	}

	to, exists := byTrigger[trigger]
	if !exists {
		return from, fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, from)
	}

	return to, nil
}

// Machine starts a state machine at the given state
func (t *Table) Machine(initial State) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}
	return &stateMachine{table: t, currentState: initial}
}

// PermittedTriggers lists the triggers accepted in a state, sorted by name
func (t *Table) PermittedTriggers(state State) []Trigger {
	byTrigger := t.transitions[state]
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger := range byTrigger {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
