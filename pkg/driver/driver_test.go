package driver

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
)

type memJournal struct {
	mu      sync.Mutex
	entries []storage.Entry
}

func (j *memJournal) Record(_ context.Context, e storage.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func newMock(t *testing.T, opts ...Option) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	opts = append([]Option{WithLogger(log.Nop())}, opts...)
	return New(db, DefaultConfig(), opts...), mock
}

func TestExec_RunsDerivedStatementsInOrder(t *testing.T) {
	journal := &memJournal{}
	conn, mock := newMock(t, WithJournal(journal))

	mock.ExpectExec(`CREATE TABLE "t" ("id" integer, "a" integer)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX t_1 ON "t" ("a" )`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := conn.Exec(context.Background(), `CREATE TABLE "t" ("id" integer, "a" integer, UNIQUE ("a"));`)
	require.NoError(t, err)

	require.Len(t, journal.entries, 1)
	e := journal.entries[0]
	assert.Equal(t, "exec", e.Source)
	assert.Equal(t, "CREATE TABLE", e.Kind)
	assert.Equal(t, `CREATE TABLE "t" ("id" integer, "a" integer)`, e.Rewritten)
	assert.Len(t, e.Derived, 2)
	assert.NotEmpty(t, e.ID)
	assert.Empty(t, e.Error)
}

func TestExec_DerivedFailure(t *testing.T) {
	journal := &memJournal{}
	conn, mock := newMock(t, WithJournal(journal))

	mock.ExpectExec(`CREATE TABLE "t" ("id" integer)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE").
		WillReturnError(fmt.Errorf("sequence exists"))

	_, err := conn.Exec(context.Background(), `CREATE TABLE "t" ("id" integer)`)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDerivedFailed))
	fields := errors.GetFields(err)
	assert.Equal(t, "CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE", fields["statement"])
	assert.Equal(t, 0, fields["index"])

	require.Len(t, journal.entries, 1)
	assert.NotEmpty(t, journal.entries[0].Error)
}

func TestExec_PrimaryFailureSkipsDerived(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec(`CREATE TABLE "t" ("id" integer)`).
		WillReturnError(fmt.Errorf("table exists"))

	_, err := conn.Exec(context.Background(), `CREATE TABLE "t" ("id" integer)`)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExecFailed))
}

func TestExec_PlaceholdersAndArgs(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec(`UPDATE "t" SET "flag" = ? WHERE "id" = ?`).
		WithArgs(int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := conn.Exec(context.Background(), `UPDATE "t" SET "flag" = %s WHERE "id" = %s`, true, int64(3))
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestExec_ParamCountMismatch(t *testing.T) {
	journal := &memJournal{}
	conn, _ := newMock(t, WithJournal(journal))

	_, err := conn.Exec(context.Background(), `DELETE FROM "t" WHERE "id" = ?`)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeParamCount))
	assert.Equal(t, 1, errors.GetFields(err)["expected"])
	assert.Equal(t, 0, errors.GetFields(err)["got"])

	require.Len(t, journal.entries, 1)
	assert.Empty(t, journal.entries[0].Rewritten)
}

func TestQuery_RewritesLimit(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectQuery(`SELECT TOP 5 "name" FROM "t" WHERE "a" = ?`).
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("one").AddRow("two"))

	rows, err := conn.Query(context.Background(), `SELECT "name" FROM "t" WHERE "a" = ? LIMIT 5`, "x")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"one", "two"}, names)
}

func TestInit_CreatesDual(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec("SET SCHEMA 'PUB'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TBL FROM SYSPROGRESS.SYSTABLES WHERE OWNER=? AND TBL=?").
		WithArgs("PUB", "DUAL").
		WillReturnRows(sqlmock.NewRows([]string{"TBL"}))
	mock.ExpectExec(`CREATE TABLE "PUB"."DUAL" (SEQACCESS integer)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "PUB"."DUAL" (SEQACCESS) VALUES (1)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, conn.Init(context.Background()))
}

func TestInit_DualExists(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec("SET SCHEMA 'PUB'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TBL FROM SYSPROGRESS.SYSTABLES WHERE OWNER=? AND TBL=?").
		WithArgs("PUB", "DUAL").
		WillReturnRows(sqlmock.NewRows([]string{"TBL"}).AddRow("DUAL"))

	require.NoError(t, conn.Init(context.Background()))
}

func TestInit_SchemaFailure(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec("SET SCHEMA 'PUB'").WillReturnError(fmt.Errorf("no such schema"))

	err := conn.Init(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeSession))
}

func TestSession_SetsSchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	conn := New(db, Config{Schema: "APP"}, WithLogger(log.Nop()))

	mock.ExpectExec("SET SCHEMA 'APP'").WillReturnResult(sqlmock.NewResult(0, 0))
	// Sequences always live in PUB; the dual table follows the schema.
	mock.ExpectQuery(`SELECT PUB.SEQ_ID_t.NEXTVAL FROM "APP"."DUAL"`).
		WillReturnRows(sqlmock.NewRows([]string{"NEXTVAL"}).AddRow(int64(1)))

	s, err := conn.Session(context.Background())
	require.NoError(t, err)

	id, err := s.NextID(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextID(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectQuery(`SELECT PUB.SEQ_ID_customer_relationship_man.NEXTVAL FROM "PUB"."DUAL"`).
		WillReturnRows(sqlmock.NewRows([]string{"NEXTVAL"}).AddRow(int64(42)))

	id, err := conn.NextID(context.Background(), "customer_relationship_management_accounts")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestNextID_NoRow(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectQuery(`SELECT PUB.SEQ_ID_t.NEXTVAL FROM "PUB"."DUAL"`).
		WillReturnRows(sqlmock.NewRows([]string{"NEXTVAL"}))

	_, err := conn.NextID(context.Background(), "t")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSequence))
}

func TestInsert_DrawsID(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectQuery("SELECT COL FROM SYSPROGRESS.SYSCOLUMNS WHERE OWNER=? AND TBL=? AND COL=?").
		WithArgs("PUB", "t", "id").
		WillReturnRows(sqlmock.NewRows([]string{"COL"}).AddRow("id"))
	mock.ExpectQuery(`SELECT PUB.SEQ_ID_t.NEXTVAL FROM "PUB"."DUAL"`).
		WillReturnRows(sqlmock.NewRows([]string{"NEXTVAL"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO "t" ("a", "id") VALUES (?, ?)`).
		WithArgs("x", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := conn.Insert(context.Background(), "t", []string{"a"}, []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestInsert_NoIDColumn(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectQuery("SELECT COL FROM SYSPROGRESS.SYSCOLUMNS WHERE OWNER=? AND TBL=? AND COL=?").
		WithArgs("PUB", "t", "id").
		WillReturnRows(sqlmock.NewRows([]string{"COL"}))
	mock.ExpectExec(`INSERT INTO "t" ("a") VALUES (?)`).
		WithArgs("x").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := conn.Insert(context.Background(), "t", []string{"a"}, []any{"x"})
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestInsertMany_CallerSuppliedID(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO "t" ("id", "a") VALUES (?, ?)`).
		WithArgs(int64(10), "x").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "t" ("id", "a") VALUES (?, ?)`).
		WithArgs(int64(11), "y").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ids, err := conn.InsertMany(context.Background(), "t", []string{"id", "a"}, [][]any{
		{int64(10), "x"},
		{11, "y"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids)
}

func TestInsert_ValueCountMismatch(t *testing.T) {
	conn, _ := newMock(t)

	_, err := conn.Insert(context.Background(), "t", []string{"id", "a"}, []any{1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeParamCount))

	_, err = conn.Insert(context.Background(), `""`, []string{"a"}, []any{1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdent))
	_, err = conn.InsertMany(context.Background(), "t", nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdent))
}

func TestBuildInsert(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "customer_relationship_management" ("a", "b") VALUES (?, ?)`,
		BuildInsert("customer_relationship_management_accounts", []string{"a", "b"}))
}

func TestTx_CommitAndRollback(t *testing.T) {
	conn, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "t" ("id" integer)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `CREATE TABLE "t" ("id" integer)`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = conn.BeginTx(ctx, &sql.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}

func TestIntrospection(t *testing.T) {
	conn, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT TBL FROM SYSPROGRESS.SYSTABLES WHERE OWNER=?").
		WithArgs("PUB").
		WillReturnRows(sqlmock.NewRows([]string{"TBL"}).AddRow("orders ").AddRow("users"))
	mock.ExpectQuery("SELECT COL,COLTYPE,WIDTH,NULLFLAG FROM SYSPROGRESS.SYSCOLUMNS WHERE OWNER=? AND TBL=?").
		WithArgs("PUB", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"COL", "COLTYPE", "WIDTH", "NULLFLAG"}).
			AddRow("id", "integer", 4, "N").
			AddRow("note", "varchar", 200, "Y"))
	mock.ExpectQuery("SELECT CNSTRNAME,REFTBLNAME FROM SYSPROGRESS.SYS_REF_CONSTRS WHERE OWNER=? AND TBLNAME=?").
		WithArgs("PUB", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"CNSTRNAME", "REFTBLNAME"}).AddRow("user_fk", "users"))
	mock.ExpectQuery("SELECT IDXNAME,IDXTYPE,COLNAME FROM SYSPROGRESS.SYSINDEXES WHERE IDXOWNER=? AND TBL=? ORDER BY IDXNAME,IDXSEQ").
		WithArgs("PUB", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"IDXNAME", "IDXTYPE", "COLNAME"}).
			AddRow("orders_pk", "U", "id").
			AddRow("orders_user_note", "D", "user_id").
			AddRow("orders_user_note", "D", "note"))
	mock.ExpectQuery("SELECT IDXNAME FROM SYSPROGRESS.SYS_TBL_CONSTRS WHERE OWNER=? AND TBLNAME=? AND CNSTRTYPE='P'").
		WithArgs("PUB", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"IDXNAME"}).AddRow("orders_pk"))

	tables, err := conn.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	cols, err := conn.Columns(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "id", Type: "integer", Width: 4},
		{Name: "note", Type: "varchar", Width: 200, Nullable: true},
	}, cols)

	fks, err := conn.ForeignKeys(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []ForeignKey{{Name: "user_fk", RefTable: "users"}}, fks)

	idx, err := conn.Indexes(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.Equal(t, &Index{Name: "orders_pk", Columns: []string{"id"}, Unique: true, Primary: true}, idx[0])
	assert.Equal(t, &Index{Name: "orders_user_note", Columns: []string{"user_id", "note"}}, idx[1])
}

func TestIntrospection_QueryError(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectQuery("SELECT TBL FROM SYSPROGRESS.SYSTABLES WHERE OWNER=?").
		WithArgs("PUB").
		WillReturnError(fmt.Errorf("catalogue unavailable"))

	_, err := conn.TableNames(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeIntrospect))
}
