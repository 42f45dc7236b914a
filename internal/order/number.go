package order

import "context"

// First human-facing order number ever assigned.
const firstOrderNumber = 1000

// nextOrderNumber computes the next display number from the stored maximum.
// Returns nil when the numbering column is absent from the deployed schema.
//
// This is a deliberate read-then-write without a lock: two concurrent
// creators can pick the same number or leave a gap. The number is display
// only; uniqueness lives on session_id.
func nextOrderNumber(ctx context.Context, st Store) (*int64, error) {
	max, ok, err := st.MaxOrderNumber(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	n := int64(firstOrderNumber)
	if max > 0 {
		n = max + 1
	}
	return &n, nil
}
