package orm

import "context"

// Transaction runs fn inside one database transaction. fn receives a DB
// bound to the transaction; every operation called on it is committed
// together or not at all. An error returned by fn rolls back and is
// returned unchanged. Calling Transaction on a transaction-bound DB fails
// with ErrNestedTransaction.
//
// The pool holds a single connection, so fn must use the DB it is given:
// calls on the outer DB block until the transaction ends.
func (d *DB) Transaction(ctx context.Context, fn func(tx *DB) error) error {
	if d.tx != nil {
		return newError(CodeNestedTransaction, nil, "transaction already in progress")
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return newError(CodeTransaction, err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	bound := *d
	bound.tx = tx

	if err := fn(&bound); err != nil {
		d.log.Debug("transaction rolled back", "error", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return newError(CodeTransaction, err, "commit transaction")
	}
	return nil
}
