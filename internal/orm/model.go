package orm

import "context"

// Model is a handle bound to one table. It is resolved lazily, so a Model
// may be created before its table is defined.
type Model struct {
	db   *DB
	name string
}

// Model returns a handle for the named table on d. Inside a transaction,
// call it on the transaction-bound DB.
func (d *DB) Model(name string) *Model {
	return &Model{db: d, name: name}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Table() (*Table, bool) { return m.db.Table(m.name) }

func (m *Model) Create(ctx context.Context, data Record) (*Created, error) {
	return m.db.Create(ctx, m.name, data)
}

func (m *Model) BulkCreate(ctx context.Context, records []Record) ([]*Created, error) {
	return m.db.BulkCreate(ctx, m.name, records)
}

func (m *Model) FindAll(ctx context.Context, opts FindOptions) ([]Record, error) {
	return m.db.FindAll(ctx, m.name, opts)
}

func (m *Model) FindOne(ctx context.Context, opts FindOptions) (Record, error) {
	return m.db.FindOne(ctx, m.name, opts)
}

func (m *Model) FindByPK(ctx context.Context, id any, opts FindOptions) (Record, error) {
	return m.db.FindByPK(ctx, m.name, id, opts)
}

func (m *Model) Update(ctx context.Context, data Record, where Where) (int64, error) {
	return m.db.Update(ctx, m.name, data, where)
}

func (m *Model) Delete(ctx context.Context, where Where, opts DeleteOptions) (int64, error) {
	return m.db.Delete(ctx, m.name, where, opts)
}

func (m *Model) Restore(ctx context.Context, where Where) (int64, error) {
	return m.db.Restore(ctx, m.name, where)
}

func (m *Model) Count(ctx context.Context, where Where) (int64, error) {
	return m.db.Count(ctx, m.name, where)
}

func (m *Model) Exists(ctx context.Context, where Where) (bool, error) {
	return m.db.Exists(ctx, m.name, where)
}
