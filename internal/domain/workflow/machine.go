package workflow

// StateMachine tracks one record's current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger; the state is unchanged on error
	Fire(trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}

type stateMachine struct {
	table        *Table
	currentState State
}

func (m *stateMachine) State() State {
	return m.currentState
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, err := m.table.Next(m.currentState, trigger)
	return err == nil
}

func (m *stateMachine) Fire(trigger Trigger) error {
	next, err := m.table.Next(m.currentState, trigger)
	if err != nil {
		return err
	}
	m.currentState = next
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	return m.table.PermittedTriggers(m.currentState)
}
