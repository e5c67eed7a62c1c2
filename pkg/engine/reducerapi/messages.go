package reducerapi

// CallReducerRequest is the client-to-host reducer call request, the
// wire shape §6 names: a request ID the caller correlates against the
// matching ReducerResult, reserved flags, the reducer's registered
// name, and its BSATN-encoded arguments.
type CallReducerRequest struct {
	RequestID uint32 `json:"request_id"`
	Flags     uint8  `json:"flags"`
	Reducer   string `json:"reducer"`
	Args      []byte `json:"args"`
}

// OutcomeKind discriminates ReducerResult's outcome, mirroring
// Ok(ret_value, TransactionUpdate) | OkEmpty | Err(bytes) |
// InternalError(string).
type OutcomeKind uint8

const (
	OutcomeOk OutcomeKind = iota
	OutcomeOkEmpty
	OutcomeErr
	OutcomeInternalError
)

// RowChange is one row's BSATN-encoded bytes within a TableUpdate.
type RowChange struct {
	Row []byte `json:"row"`
}

// TableUpdate is one table's insert/delete row changes from a commit.
type TableUpdate struct {
	TableName string      `json:"table_name"`
	Inserts   []RowChange `json:"inserts,omitempty"`
	Deletes   []RowChange `json:"deletes,omitempty"`
}

// QuerySetUpdate groups TableUpdates under a query set.
type QuerySetUpdate struct {
	QuerySetID uint32        `json:"query_set_id"`
	Tables     []TableUpdate `json:"tables"`
}

// TransactionUpdate is delivered to each subscribed client after a
// successful reducer transaction.
type TransactionUpdate struct {
	QuerySets []QuerySetUpdate `json:"query_sets"`
}

// ReducerResult is the host-to-client response to a CallReducerRequest.
type ReducerResult struct {
	RequestID uint32      `json:"request_id"`
	Timestamp int64       `json:"timestamp"` // nanoseconds since Unix epoch
	Outcome   OutcomeKind `json:"outcome"`

	// Populated only for Outcome == OutcomeOk.
	ReturnValue []byte             `json:"return_value,omitempty"`
	Update      *TransactionUpdate `json:"update,omitempty"`

	// Populated only for Outcome == OutcomeErr.
	ErrBytes []byte `json:"err_bytes,omitempty"`

	// Populated only for Outcome == OutcomeInternalError.
	InternalError string `json:"internal_error,omitempty"`
}
