// Package agent defines the assembled agent: the runtime aggregation of
// an identity, a wallet, loaded resources and the collaborators that
// drive its act/react loop.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/registry"
	"github.com/agentforge-io/agentforge/engine/wallet"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// LoopMode selects how the agent's main loop schedules skill behaviours.
type LoopMode string

const (
	// LoopModeAsync runs behaviours concurrently; the default.
	LoopModeAsync LoopMode = "async"
	// LoopModeSync ticks behaviours one at a time per period.
	LoopModeSync LoopMode = "sync"
)

// Valid reports whether the mode is one of the supported loop modes.
func (m LoopMode) Valid() bool {
	return m == LoopModeAsync || m == LoopModeSync
}

// RuntimeMode selects how the agent runtime schedules its loops.
type RuntimeMode string

const (
	// RuntimeModeAsync multiplexes every loop on one scheduler; the default.
	RuntimeModeAsync RuntimeMode = "async"
	// RuntimeModeThreaded gives each loop its own goroutine.
	RuntimeModeThreaded RuntimeMode = "threaded"
)

// Valid reports whether the mode is one of the supported runtime modes.
func (m RuntimeMode) Valid() bool {
	return m == RuntimeModeAsync || m == RuntimeModeThreaded
}

// TaskManagerMode selects where background tasks execute.
type TaskManagerMode string

const (
	// TaskManagerThreaded runs tasks in-process; the default.
	TaskManagerThreaded TaskManagerMode = "threaded"
	// TaskManagerMultiprocess runs tasks in worker subprocesses.
	TaskManagerMultiprocess TaskManagerMode = "multiprocess"
)

// Valid reports whether the mode is one of the supported task manager modes.
func (m TaskManagerMode) Valid() bool {
	return m == TaskManagerThreaded || m == TaskManagerMultiprocess
}

// Settings are the runtime knobs of an assembled agent.
type Settings struct {
	// Period is the tick interval of the main loop.
	Period time.Duration
	// ExecutionTimeout bounds a single handler invocation; zero means
	// unbounded.
	ExecutionTimeout time.Duration
	// MaxReactions caps how many envelopes one tick may process.
	MaxReactions int
	// LoopMode selects the main loop implementation.
	LoopMode LoopMode
	// RuntimeMode selects how the runtime schedules its loops.
	RuntimeMode RuntimeMode
	// TaskManagerMode selects where background tasks execute.
	TaskManagerMode TaskManagerMode
	// SkillExceptionPolicy decides what a skill error does to the loop.
	SkillExceptionPolicy ExceptionPolicy
	// ConnectionExceptionPolicy decides what a connection error does to
	// the loop.
	ConnectionExceptionPolicy ExceptionPolicy
	// StorageURI points the agent's generic storage at a backend; empty
	// disables storage.
	StorageURI string
}

// ExceptionPolicy decides how the loop reacts to a skill failure.
type ExceptionPolicy string

const (
	// PolicyPropagate stops the agent and surfaces the error.
	PolicyPropagate ExceptionPolicy = "propagate"
	// PolicyJustLog records the error and keeps the loop running.
	PolicyJustLog ExceptionPolicy = "just_log"
	// PolicyStopAndExit stops the agent cleanly without surfacing.
	PolicyStopAndExit ExceptionPolicy = "stop_and_exit"
)

// DefaultSettings returns the settings an agent gets when its project
// declares none.
func DefaultSettings() Settings {
	return Settings{
		Period:                    50 * time.Millisecond,
		MaxReactions:              20,
		LoopMode:                  LoopModeAsync,
		RuntimeMode:               RuntimeModeAsync,
		TaskManagerMode:           TaskManagerThreaded,
		SkillExceptionPolicy:      PolicyPropagate,
		ConnectionExceptionPolicy: PolicyPropagate,
	}
}

// Context is the ambient state the builder collects for the agent and
// shares with every skill: where the agent keeps its data, how ledger
// amounts are displayed, which connection carries each protocol, and
// the arbitrary values set at build time.
type Context struct {
	DataDir               string
	ExtraContext          map[string]any
	CurrencyDenominations map[string]string
	DefaultRouting        map[core.PublicId]core.PublicId
}

// Value returns an extra context value by key.
func (c Context) Value(key string) (any, bool) {
	v, ok := c.ExtraContext[key]
	return v, ok
}

// DecisionMaker arbitrates over outgoing messages and signing requests.
type DecisionMaker interface {
	// Name identifies the implementation for diagnostics.
	Name() string
	// Start begins processing; it returns when ctx is done.
	Start(ctx context.Context) error
	// Stop halts processing and releases resources.
	Stop() error
}

// ErrorHandler receives envelopes that cannot be delivered.
type ErrorHandler interface {
	Name() string
	// OnUnsupportedProtocol is called for an envelope on an unknown protocol.
	OnUnsupportedProtocol(ctx context.Context, protocolID core.PublicId) error
	// OnNoActiveHandler is called when no skill handles the envelope.
	OnNoActiveHandler(ctx context.Context, reason string) error
}

// DecisionMakerConstructor builds a decision maker for an identity/wallet
// pair.
type DecisionMakerConstructor func(identity *wallet.Identity, w *wallet.Wallet, log logger.Logger) (DecisionMaker, error)

// ErrorHandlerConstructor builds an error handler.
type ErrorHandlerConstructor func(log logger.Logger) (ErrorHandler, error)

// DefaultCollaborator is the registry name selecting the built-in
// implementation of a collaborator.
const DefaultCollaborator = "default"

var (
	collabMu       sync.RWMutex
	decisionMakers = map[string]DecisionMakerConstructor{DefaultCollaborator: newDefaultDecisionMaker}
	errorHandlers  = map[string]ErrorHandlerConstructor{DefaultCollaborator: newDefaultErrorHandler}
)

// RegisterDecisionMaker binds a named decision maker constructor.
func RegisterDecisionMaker(name string, ctor DecisionMakerConstructor) {
	collabMu.Lock()
	defer collabMu.Unlock()
	decisionMakers[name] = ctor
}

// RegisterErrorHandler binds a named error handler constructor.
func RegisterErrorHandler(name string, ctor ErrorHandlerConstructor) {
	collabMu.Lock()
	defer collabMu.Unlock()
	errorHandlers[name] = ctor
}

// ResolveDecisionMaker returns the constructor registered under name;
// the empty name resolves the default.
func ResolveDecisionMaker(name string) (DecisionMakerConstructor, error) {
	if name == "" {
		name = DefaultCollaborator
	}
	collabMu.RLock()
	defer collabMu.RUnlock()
	ctor, ok := decisionMakers[name]
	if !ok {
		return nil, core.NewError(
			fmt.Errorf("no decision maker registered under %q", name),
			core.CodeNotFound,
			map[string]any{"name": name},
		)
	}
	return ctor, nil
}

// ResolveErrorHandler returns the constructor registered under name; the
// empty name resolves the default.
func ResolveErrorHandler(name string) (ErrorHandlerConstructor, error) {
	if name == "" {
		name = DefaultCollaborator
	}
	collabMu.RLock()
	defer collabMu.RUnlock()
	ctor, ok := errorHandlers[name]
	if !ok {
		return nil, core.NewError(
			fmt.Errorf("no error handler registered under %q", name),
			core.CodeNotFound,
			map[string]any{"name": name},
		)
	}
	return ctor, nil
}

// Agent is a fully assembled agent, ready to run. All fields are wired by
// the builder; an Agent is inert until Start is called.
type Agent struct {
	identity      *wallet.Identity
	wallet        *wallet.Wallet
	resources     *registry.Resources
	connections   []*component.Component
	settings      Settings
	context       Context
	decisionMaker DecisionMaker
	errorHandler  ErrorHandler
	log           logger.Logger

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
}

// New wires an agent from its collaborators.
func New(
	identity *wallet.Identity,
	w *wallet.Wallet,
	resources *registry.Resources,
	connections []*component.Component,
	settings Settings,
	actx Context,
	dm DecisionMaker,
	eh ErrorHandler,
	log logger.Logger,
) *Agent {
	return &Agent{
		identity:      identity,
		wallet:        w,
		resources:     resources,
		connections:   connections,
		settings:      settings,
		context:       actx,
		decisionMaker: dm,
		errorHandler:  eh,
		log:           log,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.identity.Name }

// Identity returns the agent's identity.
func (a *Agent) Identity() *wallet.Identity { return a.identity }

// Wallet returns the agent's wallet.
func (a *Agent) Wallet() *wallet.Wallet { return a.wallet }

// Resources returns the agent's component registry.
func (a *Agent) Resources() *registry.Resources { return a.resources }

// Connections returns the active connections in routing order; the
// default connection is first.
func (a *Agent) Connections() []*component.Component { return a.connections }

// Settings returns the agent's runtime settings.
func (a *Agent) Settings() Settings { return a.settings }

// Context returns the ambient state collected at build time.
func (a *Agent) Context() Context { return a.context }

// DataDir returns the directory the agent's data resolves against.
func (a *Agent) DataDir() string { return a.context.DataDir }

// DecisionMaker returns the agent's decision maker.
func (a *Agent) DecisionMaker() DecisionMaker { return a.decisionMaker }

// ErrorHandler returns the agent's error handler.
func (a *Agent) ErrorHandler() ErrorHandler { return a.errorHandler }

// Running reports whether the agent has been started and not stopped.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Start launches the decision maker and marks the agent running. It is
// an error to start an already running agent.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return core.NewError(
			fmt.Errorf("agent %q is already running", a.identity.Name),
			core.CodeConfigurationInvalid,
			map[string]any{"agent": a.identity.Name},
		)
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.stop = cancel
	a.running = true
	go func() {
		if err := a.decisionMaker.Start(runCtx); err != nil && a.log != nil {
			a.log.Error("decision maker stopped with error", "error", err)
		}
	}()
	if a.log != nil {
		a.log.Info("agent started",
			"agent", a.identity.Name,
			"address", a.identity.Address(),
			"loop_mode", string(a.settings.LoopMode),
		)
	}
	return nil
}

// Stop halts the agent.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.stop()
	a.running = false
	if err := a.decisionMaker.Stop(); err != nil {
		return err
	}
	if a.log != nil {
		a.log.Info("agent stopped", "agent", a.identity.Name)
	}
	return nil
}
