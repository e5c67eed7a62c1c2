package engine

import "fmt"

// UnknownReducerError is returned by CallReducer for a reducerID with no
// registered ReducerDef.
type UnknownReducerError struct {
	ReducerID uint32
}

func (e *UnknownReducerError) Error() string {
	return fmt.Sprintf("engine: no reducer registered for id %d", e.ReducerID)
}

// BudgetExceededError is returned (and the enclosing MutTx rolled back)
// when a reducer invocation with a positive budget limit returns with
// nothing left in its Budget.
type BudgetExceededError struct {
	ReducerID uint32
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("engine: reducer %d exceeded its budget", e.ReducerID)
}
