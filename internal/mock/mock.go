// Package mock is a scripted protocol server for tests. A Script is a
// sequence of steps, each either expecting a frontend message or sending
// a backend message; the script fails on the first divergence.
package mock

import (
	"fmt"
	"io"
	"reflect"

	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/xdg-go/scram"
)

// Step is one unit of script execution.
type Step interface {
	Step(*proto.Backend) error
}

// Script runs steps in order against one backend stream.
type Script struct {
	Steps []Step
}

func (s *Script) Run(backend *proto.Backend) error {
	for i, step := range s.Steps {
		if err := step.Step(backend); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

type expectStartupStep struct {
	any  bool
	want *proto.StartupMessage
}

func (e *expectStartupStep) Step(backend *proto.Backend) error {
	msg, err := backend.ReceiveStartupMessage()
	if err != nil {
		return err
	}
	if e.any {
		if _, ok := msg.(*proto.StartupMessage); !ok {
			return fmt.Errorf("expected StartupMessage, got %T", msg)
		}
		return nil
	}
	if !reflect.DeepEqual(msg, e.want) {
		return fmt.Errorf("expected %#v, got %#v", e.want, msg)
	}
	return nil
}

// ExpectAnyStartupMessage accepts any startup packet.
func ExpectAnyStartupMessage() Step {
	return &expectStartupStep{any: true}
}

// ExpectStartupMessage requires the exact startup packet.
func ExpectStartupMessage(want *proto.StartupMessage) Step {
	return &expectStartupStep{want: want}
}

type expectMessageStep struct {
	want proto.FrontendMessage
	any  bool
}

func (e *expectMessageStep) Step(backend *proto.Backend) error {
	msg, err := backend.Receive()
	if err != nil {
		return err
	}
	if e.any {
		if reflect.TypeOf(msg) != reflect.TypeOf(e.want) {
			return fmt.Errorf("expected %T, got %T", e.want, msg)
		}
		return nil
	}
	if !reflect.DeepEqual(msg, e.want) {
		return fmt.Errorf("expected %#v, got %#v", e.want, msg)
	}
	return nil
}

// ExpectMessage requires the next frontend message to equal want.
func ExpectMessage(want proto.FrontendMessage) Step {
	return &expectMessageStep{want: want}
}

// ExpectAnyMessage requires only the message type of want.
func ExpectAnyMessage(want proto.FrontendMessage) Step {
	return &expectMessageStep{want: want, any: true}
}

type sendMessageStep struct {
	msg proto.BackendMessage
}

func (s *sendMessageStep) Step(backend *proto.Backend) error {
	backend.Send(s.msg)
	return backend.Flush()
}

// SendMessage writes one backend message.
func SendMessage(msg proto.BackendMessage) Step {
	return &sendMessageStep{msg: msg}
}

type waitForCloseStep struct{}

func (waitForCloseStep) Step(backend *proto.Backend) error {
	for {
		_, err := backend.Receive()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// WaitForClose consumes messages until the peer closes the stream.
func WaitForClose() Step {
	return waitForCloseStep{}
}

type funcStep func(*proto.Backend) error

func (f funcStep) Step(backend *proto.Backend) error { return f(backend) }

// StepFunc wraps a function as a Step.
func StepFunc(f func(*proto.Backend) error) Step { return funcStep(f) }

// readySteps is the tail every accepted session shares: key data and the
// first ReadyForQuery.
func readySteps() []Step {
	return []Step{
		SendMessage(&proto.ParameterStatus{Name: "server_version", Value: "16.4"}),
		SendMessage(&proto.BackendKeyData{ProcessID: 42, SecretKey: 4242}),
		SendMessage(&proto.ReadyForQuery{TxStatus: 'I'}),
	}
}

// AcceptUnauthenticatedConnRequestSteps accepts any startup packet and
// completes the handshake without authentication.
func AcceptUnauthenticatedConnRequestSteps() []Step {
	steps := []Step{
		ExpectAnyStartupMessage(),
		SendMessage(&proto.AuthenticationOk{}),
	}
	return append(steps, readySteps()...)
}

// AcceptCleartextAuthSteps requires a cleartext password exchange.
func AcceptCleartextAuthSteps(password string) []Step {
	steps := []Step{
		ExpectAnyStartupMessage(),
		SendMessage(&proto.AuthenticationCleartextPassword{}),
		ExpectMessage(&proto.PasswordMessage{Password: password}),
		SendMessage(&proto.AuthenticationOk{}),
	}
	return append(steps, readySteps()...)
}

// AcceptSCRAMAuthSteps runs the server side of a SCRAM-SHA-256
// conversation for the given credentials.
func AcceptSCRAMAuthSteps(user, password string) []Step {
	steps := []Step{
		ExpectAnyStartupMessage(),
		StepFunc(func(backend *proto.Backend) error {
			return scramExchange(backend, user, password)
		}),
	}
	return append(steps, readySteps()...)
}

func scramExchange(backend *proto.Backend, user, password string) error {
	client, err := scram.SHA256.NewClient(user, password, "")
	if err != nil {
		return err
	}
	stored := client.GetStoredCredentials(scram.KeyFactors{Salt: "mocksalt", Iters: 4096})

	server, err := scram.SHA256.NewServer(func(string) (scram.StoredCredentials, error) {
		return stored, nil
	})
	if err != nil {
		return err
	}
	conv := server.NewConversation()

	backend.Send(&proto.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}})
	if err := backend.Flush(); err != nil {
		return err
	}
	backend.SetAuthType(proto.AuthTypeSASL)

	msg, err := backend.Receive()
	if err != nil {
		return err
	}
	initial, ok := msg.(*proto.SASLInitialResponse)
	if !ok {
		return fmt.Errorf("expected SASLInitialResponse, got %T", msg)
	}
	if initial.AuthMechanism != "SCRAM-SHA-256" {
		return fmt.Errorf("unexpected mechanism %q", initial.AuthMechanism)
	}

	challenge, err := conv.Step(string(initial.Data))
	if err != nil {
		return err
	}
	backend.Send(&proto.AuthenticationSASLContinue{Data: []byte(challenge)})
	if err := backend.Flush(); err != nil {
		return err
	}
	backend.SetAuthType(proto.AuthTypeSASLContinue)

	msg, err = backend.Receive()
	if err != nil {
		return err
	}
	resp, ok := msg.(*proto.SASLResponse)
	if !ok {
		return fmt.Errorf("expected SASLResponse, got %T", msg)
	}

	final, err := conv.Step(string(resp.Data))
	if err != nil {
		return err
	}
	backend.Send(&proto.AuthenticationSASLFinal{Data: []byte(final)})
	backend.Send(&proto.AuthenticationOk{})
	return backend.Flush()
}
