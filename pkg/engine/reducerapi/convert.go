package reducerapi

import "github.com/cuemby/spacetimedb-core/pkg/engine/subscription"

func toWireUpdate(u *subscription.TransactionUpdate) *TransactionUpdate {
	if u == nil {
		return nil
	}
	out := &TransactionUpdate{QuerySets: make([]QuerySetUpdate, len(u.QuerySets))}
	for i, qs := range u.QuerySets {
		tables := make([]TableUpdate, len(qs.Tables))
		for j, t := range qs.Tables {
			tables[j] = TableUpdate{
				TableName: t.TableName,
				Inserts:   toWireRowChanges(t.Inserts),
				Deletes:   toWireRowChanges(t.Deletes),
			}
		}
		out.QuerySets[i] = QuerySetUpdate{QuerySetID: qs.QuerySetID, Tables: tables}
	}
	return out
}

func toWireRowChanges(changes []subscription.RowChange) []RowChange {
	if len(changes) == 0 {
		return nil
	}
	out := make([]RowChange, len(changes))
	for i, c := range changes {
		out[i] = RowChange{Row: c.Row}
	}
	return out
}
