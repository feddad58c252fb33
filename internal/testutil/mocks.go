// internal/testutil/mocks.go
package testutil

import (
	"context"
	"sync"

	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
)

// MockDoer es un mock de ports.HTTPDoer con respuestas guionizadas: cada
// llamada consume la siguiente entrada del guión. Si el guión se agota se
// repite la última entrada.
type MockDoer struct {
	mu      sync.Mutex
	Script  []MockExchange
	Calls   []ports.Request
	callIdx int
}

// MockExchange es una entrada del guión: o respuesta o error.
type MockExchange struct {
	Resp *ports.Response
	Err  error
}

// Do implementa ports.HTTPDoer.
func (m *MockDoer) Do(ctx context.Context, req ports.Request) (*ports.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)
	if len(m.Script) == 0 {
		return &ports.Response{StatusCode: 200, Body: []byte("{}")}, nil
	}

	idx := m.callIdx
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	m.callIdx++

	ex := m.Script[idx]
	return ex.Resp, ex.Err
}

// CallCount retorna el número de llamadas recibidas.
func (m *MockDoer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockRunner es un mock de ports.CommandRunner. RunFunc decide la salida por
// target y comando; si es nil, todo comando retorna salida vacía con exit 0.
type MockRunner struct {
	mu       sync.Mutex
	RunFunc  func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error)
	Commands []string
	Targets  []string
}

// Run implementa ports.CommandRunner.
func (m *MockRunner) Run(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, command)
	m.Targets = append(m.Targets, target.Key())
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, target, command)
	}
	return ports.CommandOutput{}, nil
}

// Close implementa ports.CommandRunner.
func (m *MockRunner) Close() error { return nil }

// CallCount retorna el número de comandos ejecutados.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Commands)
}

// MockNotifier es un mock de ports.Notifier que acumula los reportes.
type MockNotifier struct {
	mu      sync.Mutex
	Reports []domain.BatchReport
	Fail    error
}

// Notify implementa ports.Notifier.
func (m *MockNotifier) Notify(ctx context.Context, report domain.BatchReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Reports = append(m.Reports, report)
	return nil
}

// Name implementa ports.Notifier.
func (m *MockNotifier) Name() string { return "mock" }

// Close implementa ports.Notifier.
func (m *MockNotifier) Close() error { return nil }
