// Package linking turns pointer clicks into graph commands.
//
// The machine is either Idle, where a node click selects the node for the
// editor, or Linking, where the first node click arms a source and a click
// on a different node creates one edge and returns to Idle.
package linking

import (
	"context"
	"fmt"
	"sync"

	"github.com/divyanshwrite/worldflow/internal/application/commands"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/store"

	"go.uber.org/zap"
)

// Mode is the top-level state.
type Mode int

const (
	Idle Mode = iota
	Linking
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Linking:
		return "linking"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText encodes the mode name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts "idle" or "linking".
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*m = Idle
	case "linking":
		*m = Linking
	default:
		return fmt.Errorf("unknown linking mode %q", text)
	}
	return nil
}

// State is a copy of the machine state. Armed is only set while Linking;
// Selected only while Idle.
type State struct {
	Mode     Mode         `json:"mode"`
	Armed    graph.NodeID `json:"armed,omitempty"`
	Selected graph.NodeID `json:"selected,omitempty"`
}

func (s State) String() string {
	switch {
	case s.Mode == Linking && s.Armed != "":
		return fmt.Sprintf("linking(%s)", s.Armed)
	case s.Mode == Linking:
		return "linking(none)"
	case s.Selected != "":
		return fmt.Sprintf("idle(selected=%s)", s.Selected)
	default:
		return "idle"
	}
}

// Outcome says what a node click did.
type Outcome string

const (
	OutcomeSelected Outcome = "selected"
	OutcomeArmed    Outcome = "armed"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeLinked   Outcome = "linked"
	OutcomeFailed   Outcome = "failed"
)

// ClickResult reports a node click. Edge is set when Outcome is linked.
type ClickResult struct {
	Outcome Outcome     `json:"outcome"`
	Edge    *graph.Edge `json:"edge,omitempty"`
	State   State       `json:"state"`
}

// Observer is told about selection changes. Callbacks run outside the
// machine lock and may read State.
type Observer interface {
	// NodeSelected opens the editor on n.
	NodeSelected(n graph.Node)
	// SelectionCleared closes the editor and drops any highlight.
	SelectionCleared()
}

// Commands is the subset of the command service the machine drives.
type Commands interface {
	CreateNodeAt(ctx context.Context, pos graph.Position) (graph.Node, error)
	CreateEdge(ctx context.Context, cmd commands.CreateEdgeCommand) (graph.Edge, error)
}

// Reader resolves node ids against the current snapshot.
type Reader interface {
	Node(id graph.NodeID) (graph.Node, bool)
}

// Machine is safe for concurrent use.
type Machine struct {
	reader   Reader
	commands Commands
	observer Observer
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

// NewMachine creates an Idle machine. A nil observer discards notifications.
func NewMachine(reader Reader, cmds Commands, observer Observer, logger *zap.Logger) *Machine {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		reader:   reader,
		commands: cmds,
		observer: observer,
		logger:   logger.Named("linking"),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnterLinkingMode moves Idle to Linking with nothing armed and clears the
// selection. Calling it while already linking changes nothing.
func (m *Machine) EnterLinkingMode() State {
	m.mu.Lock()
	if m.state.Mode == Linking {
		st := m.state
		m.mu.Unlock()
		return st
	}
	m.state = State{Mode: Linking}
	st := m.state
	m.mu.Unlock()

	m.logger.Debug("Linking mode entered")
	m.observer.SelectionCleared()
	return st
}

// ExitLinkingMode returns to Idle and discards the armed node. Calling it
// while Idle changes nothing and keeps the selection.
func (m *Machine) ExitLinkingMode() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Mode != Linking {
		return m.state
	}
	m.logger.Debug("Linking mode exited", zap.String("armed", string(m.state.Armed)))
	m.state = State{Mode: Idle}
	return m.state
}

// OnNodeClicked handles a click on node id.
//
// Linking does not roll back on failure: once two different nodes were
// clicked the machine is Idle again and the gateway error is returned.
func (m *Machine) OnNodeClicked(ctx context.Context, id graph.NodeID) (ClickResult, error) {
	target, ok := m.reader.Node(id)
	if !ok {
		return ClickResult{State: m.State()}, apperrors.Validation(apperrors.CodeNodeNotFound, "clicked node is not in the graph").
			WithOperation("linking.click").
			WithResource("node:" + string(id)).
			Build()
	}

	m.mu.Lock()
	switch {
	case m.state.Mode == Idle:
		m.state = State{Mode: Idle, Selected: id}
		st := m.state
		m.mu.Unlock()
		m.observer.NodeSelected(target)
		return ClickResult{Outcome: OutcomeSelected, State: st}, nil

	case m.state.Armed == "":
		m.state.Armed = id
		st := m.state
		m.mu.Unlock()
		m.logger.Debug("Source node armed", zap.String("node", string(id)))
		return ClickResult{Outcome: OutcomeArmed, State: st}, nil

	case m.state.Armed == id:
		st := m.state
		m.mu.Unlock()
		return ClickResult{Outcome: OutcomeIgnored, State: st}, nil
	}

	armed := m.state.Armed
	m.state = State{Mode: Idle}
	st := m.state
	m.mu.Unlock()

	source, ok := m.reader.Node(armed)
	if !ok {
		source = graph.Node{ID: armed}
	}
	edge, err := m.commands.CreateEdge(ctx, commands.CreateEdgeCommand{
		Source: armed,
		Target: id,
		Type:   graph.DefaultEdgeType,
		Data:   graph.EdgeData{Label: commands.LinkLabel(source, target)},
	})
	if err != nil {
		m.logger.Warn("Linking failed",
			zap.String("source", string(armed)),
			zap.String("target", string(id)),
			zap.Error(err),
		)
		return ClickResult{Outcome: OutcomeFailed, State: st}, err
	}

	m.logger.Info("Nodes linked",
		zap.String("edge", string(edge.ID)),
		zap.String("source", string(armed)),
		zap.String("target", string(id)),
	)
	return ClickResult{Outcome: OutcomeLinked, Edge: &edge, State: st}, nil
}

// OnCanvasClicked creates a default node at pos. It works in either mode and
// leaves the state alone.
func (m *Machine) OnCanvasClicked(ctx context.Context, pos graph.Position) (graph.Node, error) {
	return m.commands.CreateNodeAt(ctx, pos)
}

// NodeDeleted clears any state held on id: a selected node closes the
// editor, an armed node is disarmed but linking mode stays on.
func (m *Machine) NodeDeleted(_ graph.WorkspaceID, id graph.NodeID) {
	m.mu.Lock()
	var cleared bool
	switch {
	case m.state.Mode == Linking && m.state.Armed == id:
		m.state.Armed = ""
	case m.state.Mode == Idle && m.state.Selected == id:
		m.state.Selected = ""
		cleared = true
	}
	m.mu.Unlock()

	if cleared {
		m.observer.SelectionCleared()
	}
}

// Reset returns to Idle with nothing selected.
func (m *Machine) Reset() {
	m.mu.Lock()
	hadSelection := m.state.Selected != ""
	m.state = State{Mode: Idle}
	m.mu.Unlock()

	if hadSelection {
		m.observer.SelectionCleared()
	}
}

// Attach wires the machine to the store's deletion and workspace
// notifications. The returned function detaches it.
func (m *Machine) Attach(st *store.GraphStore) func() {
	offDeleted := st.OnNodeDeleted(m.NodeDeleted)
	offMoves := st.OnWorkspaceChange(func(_, _ graph.WorkspaceID) { m.Reset() })
	return func() {
		offDeleted()
		offMoves()
	}
}

type nopObserver struct{}

func (nopObserver) NodeSelected(graph.Node) {}
func (nopObserver) SelectionCleared()       {}
