package conn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pg-sharding/pglink/internal/mock"
	"github.com/pg-sharding/pglink/pkg/config"
	"github.com/pg-sharding/pglink/pkg/conn"
	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/pg-sharding/pglink/pkg/stmtcache"
	"github.com/pg-sharding/pglink/pkg/txstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testConfig(clientEnd net.Conn) *config.Config {
	cfg := config.Default()
	cfg.Host = "mock"
	cfg.User = "alice"
	cfg.Password = "secret"
	cfg.TLS.SslMode = "disable"
	cfg.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return clientEnd, nil
	}
	return cfg
}

// startScript runs steps against the server end of a pipe and returns
// the client config plus the script's errgroup.
func startScript(t *testing.T, steps []mock.Step) (*config.Config, *errgroup.Group) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()

	g := &errgroup.Group{}
	g.Go(func() error {
		defer serverEnd.Close()
		backend := proto.NewBackend(serverEnd, serverEnd)
		return (&mock.Script{Steps: steps}).Run(backend)
	})
	return testConfig(clientEnd), g
}

func int4Field(name string, format int16) proto.FieldDescription {
	return proto.FieldDescription{
		Name:         name,
		DataTypeOID:  23,
		DataTypeSize: 4,
		TypeModifier: -1,
		Format:       format,
	}
}

func TestConnectCleartext(t *testing.T) {
	steps := append(mock.AcceptCleartextAuthSteps("secret"), mock.WaitForClose())
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, conn.StatusReady, c.Status())
	assert.Equal(t, uint32(42), c.BackendPID())
	assert.Equal(t, "16.4", c.ParameterStatus("server_version"))
	assert.Equal(t, txstatus.TXIDLE, c.TxStatus())

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, conn.StatusClosed, c.Status())
	require.NoError(t, g.Wait())
}

func TestConnectSCRAM(t *testing.T) {
	steps := append(mock.AcceptSCRAMAuthSteps("alice", "secret"), mock.WaitForClose())
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, conn.StatusReady, c.Status())

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestConnectAuthFailure(t *testing.T) {
	steps := []mock.Step{
		mock.ExpectAnyStartupMessage(),
		mock.SendMessage(&proto.ErrorResponse{
			Severity: "FATAL",
			Code:     "28P01",
			Message:  `password authentication failed for user "alice"`,
		}),
	}
	cfg, g := startScript(t, steps)

	_, err := conn.Connect(context.Background(), cfg)
	var authErr *pgerror.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, pgerror.IsFatal(err))
	require.NoError(t, g.Wait())
}

func TestExecSimpleQuery(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(),
		mock.ExpectMessage(&proto.Query{String: "SELECT 1"}),
		mock.SendMessage(&proto.RowDescription{Fields: []proto.FieldDescription{int4Field("?column?", 0)}}),
		mock.SendMessage(&proto.DataRow{Values: [][]byte{[]byte("1")}}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "SELECT 1"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	results, err := c.Exec(ctx, "SELECT 1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, conn.CommandTag("SELECT 1"), results[0].CommandTag)
	assert.EqualValues(t, 1, results[0].CommandTag.RowsAffected())
	require.Equal(t, 1, results[0].RowCount())

	values, err := results[0].Values(0)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1)}, values)

	assert.Equal(t, conn.StatusReady, c.Status())
	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestExecMultiStatement(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(),
		mock.ExpectMessage(&proto.Query{String: "SELECT 1; UPDATE t SET x = 1"}),
		mock.SendMessage(&proto.RowDescription{Fields: []proto.FieldDescription{int4Field("?column?", 0)}}),
		mock.SendMessage(&proto.DataRow{Values: [][]byte{[]byte("1")}}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "SELECT 1"}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "UPDATE 3"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	results, err := c.Exec(ctx, "SELECT 1; UPDATE t SET x = 1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].RowCount())
	assert.EqualValues(t, 3, results[1].CommandTag.RowsAffected())

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestExecServerError(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(),
		mock.ExpectMessage(&proto.Query{String: "SELECT 1/0"}),
		mock.SendMessage(&proto.ErrorResponse{Severity: "ERROR", Code: "22012", Message: "division by zero"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	_, err = c.Exec(ctx, "SELECT 1/0")
	var serr *pgerror.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, pgerror.CodeDivisionByZero, serr.SQLState())

	// A server error is scoped to its statement; the connection stays up.
	assert.Equal(t, conn.StatusReady, c.Status())
	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

const selectParamSQL = "SELECT $1::int4"

// prepareSteps is the server side of preparing selectParamSQL.
func prepareSteps() []mock.Step {
	name := stmtcache.Name(selectParamSQL)
	return []mock.Step{
		mock.ExpectMessage(&proto.Parse{Name: name, Query: selectParamSQL}),
		mock.ExpectMessage(&proto.Describe{ObjectType: 'S', Name: name}),
		mock.ExpectMessage(&proto.Sync{}),
		mock.SendMessage(&proto.ParseComplete{}),
		mock.SendMessage(&proto.ParameterDescription{ParameterOIDs: []uint32{23}}),
		mock.SendMessage(&proto.RowDescription{Fields: []proto.FieldDescription{int4Field("int4", 0)}}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
	}
}

// execSteps is the server side of one successful binary-format execution
// of selectParamSQL returning value.
func execSteps(value byte) []mock.Step {
	name := stmtcache.Name(selectParamSQL)
	return []mock.Step{
		mock.ExpectMessage(&proto.Bind{
			PreparedStatement:    name,
			ParameterFormatCodes: []int16{1},
			Parameters:           [][]byte{{0, 0, 0, value}},
			ResultFormatCodes:    []int16{1},
		}),
		mock.ExpectMessage(&proto.Execute{}),
		mock.ExpectMessage(&proto.Sync{}),
		mock.SendMessage(&proto.BindComplete{}),
		mock.SendMessage(&proto.DataRow{Values: [][]byte{{0, 0, 0, value}}}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "SELECT 1"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
	}
}

func TestQueryPreparesOnceAndReuses(t *testing.T) {
	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps()...)
	steps = append(steps, execSteps(7)...)
	// Second execution reuses the cached statement: no Parse expected.
	steps = append(steps, execSteps(9)...)
	steps = append(steps, mock.WaitForClose())
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	rows, err := c.Query(ctx, selectParamSQL, int32(7))
	require.NoError(t, err)
	require.True(t, rows.Next())
	values, err := rows.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{int32(7)}, values)
	require.False(t, rows.Next())
	require.NoError(t, rows.Close())
	assert.Equal(t, conn.CommandTag("SELECT 1"), rows.CommandTag())

	assert.Equal(t, 1, c.StatementCache().Len())

	res, err := c.QueryResult(ctx, selectParamSQL, int32(9))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	values, err = res.Values(0)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(9)}, values)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestQueryRetriesStaleStatementOnce(t *testing.T) {
	name := stmtcache.Name(selectParamSQL)

	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps()...)
	steps = append(steps, execSteps(7)...)
	// The pooler swapped the physical backend: the cached name is gone.
	steps = append(steps,
		mock.ExpectAnyMessage(&proto.Bind{}),
		mock.ExpectMessage(&proto.Execute{}),
		mock.ExpectMessage(&proto.Sync{}),
		mock.SendMessage(&proto.ErrorResponse{
			Severity: "ERROR",
			Code:     pgerror.CodeUndefinedPstmt,
			Message:  `prepared statement "` + name + `" does not exist`,
		}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
	)
	steps = append(steps, prepareSteps()...)
	steps = append(steps, execSteps(8)...)
	steps = append(steps, mock.WaitForClose())
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	res, err := c.QueryResult(ctx, selectParamSQL, int32(7))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())

	// This execution hits the stale name, re-prepares and succeeds.
	res, err = c.QueryResult(ctx, selectParamSQL, int32(8))
	require.NoError(t, err)
	values, err := res.Values(0)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(8)}, values)
	assert.Equal(t, conn.StatusReady, c.Status())

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestQueryStaleTwiceLatchesConnection(t *testing.T) {
	name := stmtcache.Name(selectParamSQL)
	staleReply := []mock.Step{
		mock.ExpectAnyMessage(&proto.Bind{}),
		mock.ExpectMessage(&proto.Execute{}),
		mock.ExpectMessage(&proto.Sync{}),
		mock.SendMessage(&proto.ErrorResponse{
			Severity: "ERROR",
			Code:     pgerror.CodeUndefinedPstmt,
			Message:  `prepared statement "` + name + `" does not exist`,
		}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
	}

	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps()...)
	steps = append(steps, execSteps(7)...)
	steps = append(steps, staleReply...)
	steps = append(steps, prepareSteps()...)
	steps = append(steps, staleReply...)
	steps = append(steps, mock.WaitForClose())
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	_, err = c.QueryResult(ctx, selectParamSQL, int32(7))
	require.NoError(t, err)

	_, err = c.QueryResult(ctx, selectParamSQL, int32(7))
	var stale *pgerror.StaleStatementError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, name, stale.Name)
	assert.Equal(t, conn.StatusFailed, c.Status())
	assert.Equal(t, 0, c.StatementCache().Len())

	// Latched: every later operation reports the same terminal error.
	_, execErr := c.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, execErr, err)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestPipelineDemultiplexesInOrder(t *testing.T) {
	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps()...)
	for _, value := range []byte{1, 2, 3} {
		steps = append(steps,
			mock.ExpectMessage(&proto.Bind{
				PreparedStatement:    stmtcache.Name(selectParamSQL),
				ParameterFormatCodes: []int16{1},
				Parameters:           [][]byte{{0, 0, 0, value}},
				ResultFormatCodes:    []int16{1},
			}),
			mock.ExpectMessage(&proto.Execute{}),
		)
	}
	steps = append(steps, mock.ExpectMessage(&proto.Sync{}))
	for _, value := range []byte{1, 2, 3} {
		steps = append(steps,
			mock.SendMessage(&proto.BindComplete{}),
			mock.SendMessage(&proto.DataRow{Values: [][]byte{{0, 0, 0, value}}}),
			mock.SendMessage(&proto.CommandComplete{CommandTag: "SELECT 1"}),
		)
	}
	steps = append(steps,
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	_, err = c.Prepare(ctx, selectParamSQL)
	require.NoError(t, err)

	pl := c.Pipeline()
	var handles []*conn.PendingResult
	for _, v := range []int32{1, 2, 3} {
		h, err := pl.SendExec(ctx, selectParamSQL, v)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	syncHandle, err := pl.Sync()
	require.NoError(t, err)

	// Wait out of submission order: the demux must still attribute each
	// response run to the right handle.
	results, err := handles[2].Wait(ctx)
	require.NoError(t, err)
	values, err := results[0].Values(0)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(3)}, values)

	for i, want := range []int32{1, 2} {
		results, err := handles[i].Wait(ctx)
		require.NoError(t, err)
		values, err := results[0].Values(0)
		require.NoError(t, err)
		assert.Equal(t, []any{want}, values)
	}

	_, err = syncHandle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, conn.StatusReady, c.Status())

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestPipelineBatchAbort(t *testing.T) {
	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps, prepareSteps()...)
	for i := 0; i < 3; i++ {
		steps = append(steps,
			mock.ExpectAnyMessage(&proto.Bind{}),
			mock.ExpectMessage(&proto.Execute{}),
		)
	}
	steps = append(steps, mock.ExpectMessage(&proto.Sync{}))
	// First member succeeds, second fails, the rest of the batch is
	// skipped until Sync.
	steps = append(steps,
		mock.SendMessage(&proto.BindComplete{}),
		mock.SendMessage(&proto.DataRow{Values: [][]byte{{0, 0, 0, 1}}}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "SELECT 1"}),
		mock.SendMessage(&proto.BindComplete{}),
		mock.SendMessage(&proto.ErrorResponse{Severity: "ERROR", Code: "22012", Message: "division by zero"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
	)
	// The connection is usable again after the boundary.
	steps = append(steps, execSteps(5)...)
	steps = append(steps, mock.WaitForClose())
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	_, err = c.Prepare(ctx, selectParamSQL)
	require.NoError(t, err)

	pl := c.Pipeline()
	var handles []*conn.PendingResult
	for _, v := range []int32{1, 2, 3} {
		h, err := pl.SendExec(ctx, selectParamSQL, v)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	syncHandle, err := pl.Sync()
	require.NoError(t, err)

	_, err = handles[0].Wait(ctx)
	require.NoError(t, err)

	_, err = handles[1].Wait(ctx)
	var serr *pgerror.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "22012", serr.SQLState())

	_, err = handles[2].Wait(ctx)
	var abort *pgerror.BatchAbortError
	require.ErrorAs(t, err, &abort)
	assert.ErrorAs(t, abort.Cause, &serr)

	_, err = syncHandle.Wait(ctx)
	require.ErrorAs(t, err, &serr)

	// Next batch after the boundary works normally.
	res, err := c.QueryResult(ctx, selectParamSQL, int32(5))
	require.NoError(t, err)
	values, err := res.Values(0)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(5)}, values)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestSendExecPrepareHonorsContext(t *testing.T) {
	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	// The implicit prepare is written before the deadline is checked;
	// the script consumes it so the submission does not block.
	steps = append(steps,
		mock.ExpectAnyMessage(&proto.Parse{}),
		mock.ExpectAnyMessage(&proto.Describe{}),
		mock.ExpectMessage(&proto.Sync{}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	pl := c.Pipeline()
	_, err = pl.SendExec(cancelled, selectParamSQL, int32(7))
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestNotifications(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(),
		mock.ExpectMessage(&proto.Query{String: "LISTEN events"}),
		mock.SendMessage(&proto.NotificationResponse{PID: 7, Channel: "events", Payload: "early"}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "LISTEN"}),
		mock.SendMessage(&proto.NotificationResponse{PID: 7, Channel: "events", Payload: "late"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	var got []*conn.Notification
	c.SetNotificationHandler(func(n *conn.Notification) {
		got = append(got, n)
	})

	results, err := c.Exec(ctx, "LISTEN events")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 0, results[0].CommandTag.RowsAffected())

	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].Payload)
	assert.Equal(t, "late", got[1].Payload)
	assert.Equal(t, uint32(7), got[0].PID)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestNoticeHandler(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(),
		mock.ExpectMessage(&proto.Query{String: "VACUUM"}),
		mock.SendMessage(&proto.NoticeResponse{Severity: "WARNING", Code: "01000", Message: "skipping table"}),
		mock.SendMessage(&proto.CommandComplete{CommandTag: "VACUUM"}),
		mock.SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
		mock.WaitForClose(),
	)
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	var notices []*pgerror.ServerError
	c.SetNoticeHandler(func(n *pgerror.ServerError) {
		notices = append(notices, n)
	})

	_, err = c.Exec(ctx, "VACUUM")
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "skipping table", notices[0].Message)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestTransportFailureLatches(t *testing.T) {
	steps := mock.AcceptUnauthenticatedConnRequestSteps()
	cfg, g := startScript(t, steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	// The server is gone; the next operation fails and latches.
	_, err = c.Exec(ctx, "SELECT 1")
	var transport *pgerror.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, conn.StatusFailed, c.Status())

	_, err2 := c.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err2, err)
}

func TestCancelRequest(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(), mock.WaitForClose())

	mainClient, mainServer := net.Pipe()
	cancelClient, cancelServer := net.Pipe()

	cfg := testConfig(mainClient)
	conns := []net.Conn{mainClient, cancelClient}
	cfg.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		nc := conns[0]
		conns = conns[1:]
		return nc, nil
	}

	g := &errgroup.Group{}
	g.Go(func() error {
		defer mainServer.Close()
		backend := proto.NewBackend(mainServer, mainServer)
		return (&mock.Script{Steps: steps}).Run(backend)
	})

	cancelMsgs := make(chan *proto.CancelRequest, 1)
	g.Go(func() error {
		defer cancelServer.Close()
		backend := proto.NewBackend(cancelServer, cancelServer)
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return err
		}
		cancelMsgs <- msg.(*proto.CancelRequest)
		return nil
	})

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, c.CancelRequest(ctx))
	select {
	case msg := <-cancelMsgs:
		assert.Equal(t, uint32(42), msg.ProcessID)
		assert.Equal(t, uint32(4242), msg.SecretKey)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel request not delivered")
	}

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

// sslDecliningScript answers the SSL negotiation with 'N' and then runs
// steps over the plaintext stream.
func sslDecliningScript(t *testing.T, sslmode string, steps []mock.Step) (*config.Config, *errgroup.Group) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()

	g := &errgroup.Group{}
	g.Go(func() error {
		defer serverEnd.Close()
		backend := proto.NewBackend(serverEnd, serverEnd)
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return err
		}
		if _, ok := msg.(*proto.SSLRequest); !ok {
			t.Errorf("expected SSLRequest, got %T", msg)
		}
		if _, err := serverEnd.Write([]byte{'N'}); err != nil {
			return err
		}
		if len(steps) == 0 {
			return nil
		}
		return (&mock.Script{Steps: steps}).Run(backend)
	})

	cfg := testConfig(clientEnd)
	cfg.TLS.SslMode = sslmode
	return cfg, g
}

func TestSSLDeclinedWithPreferFallsBackToPlaintext(t *testing.T) {
	steps := append(mock.AcceptUnauthenticatedConnRequestSteps(), mock.WaitForClose())
	cfg, g := sslDecliningScript(t, "prefer", steps)

	ctx := context.Background()
	c, err := conn.Connect(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, conn.StatusReady, c.Status())

	require.NoError(t, c.Close(ctx))
	require.NoError(t, g.Wait())
}

func TestSSLDeclinedWithRequireFails(t *testing.T) {
	cfg, g := sslDecliningScript(t, "require", nil)

	_, err := conn.Connect(context.Background(), cfg)
	var authErr *pgerror.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "tls", authErr.Method)
	require.NoError(t, g.Wait())
}

func TestCommandTagRowsAffected(t *testing.T) {
	assert.EqualValues(t, 5, conn.CommandTag("INSERT 0 5").RowsAffected())
	assert.EqualValues(t, 12, conn.CommandTag("UPDATE 12").RowsAffected())
	assert.EqualValues(t, 1, conn.CommandTag("SELECT 1").RowsAffected())
	assert.EqualValues(t, 0, conn.CommandTag("LISTEN").RowsAffected())
	assert.EqualValues(t, 0, conn.CommandTag("CREATE TABLE").RowsAffected())
	assert.EqualValues(t, 0, conn.CommandTag("").RowsAffected())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "READY", conn.StatusReady.String())
	assert.Equal(t, "FAILED", conn.StatusFailed.String())
	assert.Equal(t, "AUTHENTICATING", conn.StatusAuthenticating.String())
}
