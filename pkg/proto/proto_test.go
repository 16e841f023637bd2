package proto_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"testing/iotest"

	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendMessageRoundTrips(t *testing.T) {
	messages := []proto.BackendMessage{
		&proto.AuthenticationOk{},
		&proto.AuthenticationCleartextPassword{},
		&proto.AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}},
		&proto.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256", "SCRAM-SHA-256-PLUS"}},
		&proto.AuthenticationSASLContinue{Data: []byte("r=nonce,s=salt,i=4096")},
		&proto.AuthenticationSASLFinal{Data: []byte("v=signature")},
		&proto.BackendKeyData{ProcessID: 31337, SecretKey: 271828},
		&proto.ParameterStatus{Name: "server_version", Value: "16.4"},
		&proto.ReadyForQuery{TxStatus: 'T'},
		&proto.ParseComplete{},
		&proto.BindComplete{},
		&proto.CloseComplete{},
		&proto.NoData{},
		&proto.EmptyQueryResponse{},
		&proto.PortalSuspended{},
		&proto.ParameterDescription{ParameterOIDs: []uint32{23, 25}},
		&proto.RowDescription{Fields: []proto.FieldDescription{
			{Name: "id", TableOID: 16384, TableAttributeNumber: 1, DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 1},
			{Name: "name", DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
		}},
		&proto.DataRow{Values: [][]byte{{0, 0, 0, 7}, nil, []byte("hello")}},
		&proto.CommandComplete{CommandTag: "INSERT 0 3"},
		&proto.NotificationResponse{PID: 99, Channel: "events", Payload: "created"},
		&proto.CopyOutResponse{OverallFormat: 0, ColumnFormatCodes: []int16{0, 0}},
		&proto.CopyData{Data: []byte("1\tfoo\n")},
		&proto.CopyDone{},
		&proto.ErrorResponse{
			Severity: "ERROR",
			Code:     "42P01",
			Message:  `relation "missing" does not exist`,
			Position: 15,
			File:     "parse_relation.c",
			Line:     1392,
			Routine:  "parserOpenTable",
		},
		&proto.NoticeResponse{Severity: "NOTICE", Code: "00000", Message: "something happened"},
	}

	var buf bytes.Buffer
	backend := proto.NewBackend(&buf, &buf)
	for _, msg := range messages {
		backend.Send(msg)
	}
	require.NoError(t, backend.Flush())

	frontend := proto.NewFrontend(&buf, &buf)
	for _, want := range messages {
		got, err := frontend.Receive()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFrontendMessageRoundTrips(t *testing.T) {
	messages := []proto.FrontendMessage{
		&proto.Query{String: "SELECT 1"},
		&proto.Parse{Name: "stmt_1", Query: "SELECT $1::int4", ParameterOIDs: []uint32{23}},
		&proto.Bind{
			PreparedStatement:    "stmt_1",
			ParameterFormatCodes: []int16{1},
			Parameters:           [][]byte{{0, 0, 0, 5}},
			ResultFormatCodes:    []int16{1},
		},
		&proto.Describe{ObjectType: 'S', Name: "stmt_1"},
		&proto.Execute{Portal: "", MaxRows: 0},
		&proto.Close{ObjectType: 'S', Name: "stmt_1"},
		&proto.Flush{},
		&proto.Sync{},
		&proto.CopyFail{Message: "not today"},
		&proto.Terminate{},
	}

	var buf bytes.Buffer
	frontend := proto.NewFrontend(&buf, &buf)
	for _, msg := range messages {
		frontend.Send(msg)
	}
	require.NoError(t, frontend.Flush())

	backend := proto.NewBackend(&buf, &buf)
	for _, want := range messages {
		got, err := backend.Receive()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPasswordMessagesFollowAuthType(t *testing.T) {
	var buf bytes.Buffer
	frontend := proto.NewFrontend(&buf, &buf)
	backend := proto.NewBackend(&buf, &buf)

	frontend.Send(&proto.PasswordMessage{Password: "hunter2"})
	require.NoError(t, frontend.Flush())
	got, err := backend.Receive()
	require.NoError(t, err)
	assert.Equal(t, &proto.PasswordMessage{Password: "hunter2"}, got)

	backend.SetAuthType(proto.AuthTypeSASL)
	frontend.Send(&proto.SASLInitialResponse{AuthMechanism: "SCRAM-SHA-256", Data: []byte("n,,n=,r=abc")})
	require.NoError(t, frontend.Flush())
	got, err = backend.Receive()
	require.NoError(t, err)
	assert.Equal(t, &proto.SASLInitialResponse{AuthMechanism: "SCRAM-SHA-256", Data: []byte("n,,n=,r=abc")}, got)

	backend.SetAuthType(proto.AuthTypeSASLContinue)
	frontend.Send(&proto.SASLResponse{Data: []byte("c=biws,r=abcdef,p=proof")})
	require.NoError(t, frontend.Flush())
	got, err = backend.Receive()
	require.NoError(t, err)
	assert.Equal(t, &proto.SASLResponse{Data: []byte("c=biws,r=abcdef,p=proof")}, got)
}

func TestStartupRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frontend := proto.NewFrontend(&buf, &buf)
	frontend.Send(&proto.StartupMessage{
		ProtocolVersion: proto.ProtocolVersionNumber,
		Parameters:      map[string]string{"user": "alice", "database": "app"},
	})
	require.NoError(t, frontend.Flush())

	backend := proto.NewBackend(&buf, &buf)
	got, err := backend.ReceiveStartupMessage()
	require.NoError(t, err)
	require.IsType(t, &proto.StartupMessage{}, got)
	assert.Equal(t, map[string]string{"user": "alice", "database": "app"}, got.(*proto.StartupMessage).Parameters)
}

func TestCancelRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	raw, err := (&proto.CancelRequest{ProcessID: 42, SecretKey: 4242}).Encode(nil)
	require.NoError(t, err)
	buf.Write(raw)

	backend := proto.NewBackend(&buf, &buf)
	got, err := backend.ReceiveStartupMessage()
	require.NoError(t, err)
	assert.Equal(t, &proto.CancelRequest{ProcessID: 42, SecretKey: 4242}, got)
}

// A reader that hands out one byte per call must still produce whole
// messages: partial frames stay buffered between reads.
func TestReceiveFromFragmentedStream(t *testing.T) {
	var buf bytes.Buffer
	backend := proto.NewBackend(&buf, &buf)
	backend.Send(&proto.ParameterStatus{Name: "TimeZone", Value: "UTC"})
	backend.Send(&proto.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, backend.Flush())

	frontend := proto.NewFrontend(iotest.OneByteReader(&buf), io.Discard)

	got, err := frontend.Receive()
	require.NoError(t, err)
	assert.Equal(t, &proto.ParameterStatus{Name: "TimeZone", Value: "UTC"}, got)

	got, err = frontend.Receive()
	require.NoError(t, err)
	assert.Equal(t, &proto.ReadyForQuery{TxStatus: 'I'}, got)
}

func TestPartialFrameResumes(t *testing.T) {
	full, err := (&proto.CommandComplete{CommandTag: "SELECT 1"}).Encode(nil)
	require.NoError(t, err)

	pr, pw := io.Pipe()
	frontend := proto.NewFrontend(pr, io.Discard)

	go func() {
		pw.Write(full[:3])
		pw.Write(full[3:])
		pw.Close()
	}()

	got, err := frontend.Receive()
	require.NoError(t, err)
	assert.Equal(t, &proto.CommandComplete{CommandTag: "SELECT 1"}, got)

	_, err = frontend.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReceiveRejectsBadLength(t *testing.T) {
	header := []byte{'Z', 0, 0, 0, 3}
	frontend := proto.NewFrontend(bytes.NewReader(header), io.Discard)
	_, err := frontend.Receive()
	var malformed *proto.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, byte('Z'), malformed.Tag)
}

func TestReceiveRejectsUnknownTag(t *testing.T) {
	frame := []byte{'z', 0, 0, 0, 4}
	frontend := proto.NewFrontend(bytes.NewReader(frame), io.Discard)
	_, err := frontend.Receive()
	var malformed *proto.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestReceiveRejectsOversizedBody(t *testing.T) {
	header := make([]byte, 5)
	header[0] = 'D'
	binary.BigEndian.PutUint32(header[1:], 1<<31)
	frontend := proto.NewFrontend(bytes.NewReader(header), io.Discard)
	_, err := frontend.Receive()
	var malformed *proto.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestDataRowDistinguishesNullFromEmpty(t *testing.T) {
	raw, err := (&proto.DataRow{Values: [][]byte{nil, {}}}).Encode(nil)
	require.NoError(t, err)

	var row proto.DataRow
	require.NoError(t, row.Decode(raw[5:]))
	require.Len(t, row.Values, 2)
	assert.Nil(t, row.Values[0])
	assert.NotNil(t, row.Values[1])
	assert.Empty(t, row.Values[1])
}

func TestErrorResponseKeepsUnknownFields(t *testing.T) {
	src := &proto.ErrorResponse{
		Severity:      "ERROR",
		Code:          "22012",
		Message:       "division by zero",
		UnknownFields: map[byte]string{'Y': "future"},
	}
	raw, err := src.Encode(nil)
	require.NoError(t, err)

	var got proto.ErrorResponse
	require.NoError(t, got.Decode(raw[5:]))
	assert.Equal(t, src, &got)
}
