package release

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Event is a pipeline machine event.
type Event = statekit.EventType

// Event names for the pipeline machine.
const (
	EventRedundant  Event = "REDUNDANT"
	EventRetry      Event = "RETRY"
	EventResumed    Event = "RESUMED"
	EventIneligible Event = "INELIGIBLE"
	EventConflict   Event = "CONFLICT"
	EventDirty      Event = "DIRTY"
	EventDryRun     Event = "DRY_RUN"
	EventProceed    Event = "PROCEED"
	EventWritten    Event = "WRITTEN"
	EventCommitted  Event = "COMMITTED"
	EventTagged     Event = "TAGGED"
	EventPushed     Event = "PUSHED"
	EventPublished  Event = "PUBLISHED"
	EventFail       Event = "FAIL"
)

// State IDs for the pipeline machine.
const (
	StateEvaluating statekit.StateID = "evaluating"
	StateResuming   statekit.StateID = "resuming"
	StateWriting    statekit.StateID = "writing"
	StateCommitting statekit.StateID = "committing"
	StateTagging    statekit.StateID = "tagging"
	StatePushing    statekit.StateID = "pushing"
	StatePublishing statekit.StateID = "publishing"
	StateSkipped    statekit.StateID = "skipped"
	StateAborted    statekit.StateID = "aborted"
	StateDone       statekit.StateID = "done"
	StateFailed     statekit.StateID = "failed"
)

// MachineContext is the statekit context of a pipeline run.
type MachineContext struct {
	RunID string
}

// Transition is one edge of the pipeline machine.
type Transition struct {
	From  statekit.StateID
	Event Event
	To    statekit.StateID
}

// Transitions lists every edge of the pipeline machine.
var Transitions = []Transition{
	{StateEvaluating, EventRedundant, StateSkipped},
	{StateEvaluating, EventDryRun, StateSkipped},
	{StateEvaluating, EventRetry, StateResuming},
	{StateEvaluating, EventIneligible, StateAborted},
	{StateEvaluating, EventConflict, StateAborted},
	{StateEvaluating, EventDirty, StateAborted},
	{StateEvaluating, EventProceed, StateWriting},
	{StateEvaluating, EventFail, StateFailed},
	{StateResuming, EventResumed, StatePublishing},
	{StateResuming, EventFail, StateFailed},
	{StateWriting, EventWritten, StateCommitting},
	{StateWriting, EventFail, StateFailed},
	{StateCommitting, EventCommitted, StateTagging},
	{StateCommitting, EventFail, StateFailed},
	{StateTagging, EventTagged, StatePushing},
	{StateTagging, EventFail, StateFailed},
	{StatePushing, EventPushed, StatePublishing},
	{StatePushing, EventFail, StateFailed},
	{StatePublishing, EventPublished, StateDone},
	{StatePublishing, EventFail, StateFailed},
}

// FinalStates are the states a run ends in.
var FinalStates = []statekit.StateID{StateSkipped, StateAborted, StateDone, StateFailed}

// Machine wraps the statekit interpreter and records the visited states.
type Machine struct {
	interpreter *statekit.Interpreter[MachineContext]
	path        []statekit.StateID
}

// NewMachine builds the pipeline machine.
func NewMachine() (*Machine, error) {
	machine, err := statekit.NewMachine[MachineContext]("release-pipeline").
		WithInitial(StateEvaluating).
		State(StateEvaluating).
		On(EventRedundant).Target(StateSkipped).
		On(EventDryRun).Target(StateSkipped).
		On(EventRetry).Target(StateResuming).
		On(EventIneligible).Target(StateAborted).
		On(EventConflict).Target(StateAborted).
		On(EventDirty).Target(StateAborted).
		On(EventProceed).Target(StateWriting).
		On(EventFail).Target(StateFailed).
		Done().
		State(StateResuming).
		On(EventResumed).Target(StatePublishing).
		On(EventFail).Target(StateFailed).
		Done().
		State(StateWriting).
		On(EventWritten).Target(StateCommitting).
		On(EventFail).Target(StateFailed).
		Done().
		State(StateCommitting).
		On(EventCommitted).Target(StateTagging).
		On(EventFail).Target(StateFailed).
		Done().
		State(StateTagging).
		On(EventTagged).Target(StatePushing).
		On(EventFail).Target(StateFailed).
		Done().
		State(StatePushing).
		On(EventPushed).Target(StatePublishing).
		On(EventFail).Target(StateFailed).
		Done().
		State(StatePublishing).
		On(EventPublished).Target(StateDone).
		On(EventFail).Target(StateFailed).
		Done().
		State(StateSkipped).
		Final().
		Done().
		State(StateAborted).
		Final().
		Done().
		State(StateDone).
		Final().
		Done().
		State(StateFailed).
		Final().
		Done().
		Build()

	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline machine: %w", err)
	}

	return &Machine{interpreter: statekit.NewInterpreter(machine)}, nil
}

// Start enters the initial state.
func (m *Machine) Start() {
	m.interpreter.Start()
	m.path = append(m.path[:0], m.CurrentState())
}

// Send delivers event. Events the current state does not handle are
// rejected with a state error.
func (m *Machine) Send(event Event) error {
	const op = "release.Machine.Send"

	before := m.CurrentState()
	m.interpreter.Send(statekit.Event{Type: event})
	after := m.CurrentState()

	if after == before {
		return rperrors.State(op, fmt.Sprintf("event %s not allowed in state %s", event, before))
	}
	m.path = append(m.path, after)
	return nil
}

// CurrentState returns the current state.
func (m *Machine) CurrentState() statekit.StateID {
	return m.interpreter.State().Value
}

// IsDone reports whether the machine reached a final state.
func (m *Machine) IsDone() bool {
	return m.interpreter.Done()
}

// Path returns the states visited so far.
func (m *Machine) Path() []statekit.StateID {
	out := make([]statekit.StateID, len(m.path))
	copy(out, m.path)
	return out
}

// XStateJSON represents the XState JSON format for visualization.
type XStateJSON struct {
	ID      string                     `json:"id"`
	Initial string                     `json:"initial"`
	States  map[string]XStateStateJSON `json:"states"`
}

// XStateStateJSON represents a state in XState JSON format.
type XStateStateJSON struct {
	Type string                      `json:"type,omitempty"`
	On   map[string]XStateTransition `json:"on,omitempty"`
}

// XStateTransition represents a transition in XState JSON format.
type XStateTransition struct {
	Target string `json:"target"`
}

// ExportXStateJSON exports the pipeline definition as XState-compatible JSON.
func ExportXStateJSON() ([]byte, error) {
	states := make(map[string]XStateStateJSON)
	for _, t := range Transitions {
		s := states[string(t.From)]
		if s.On == nil {
			s.On = make(map[string]XStateTransition)
		}
		s.On[string(t.Event)] = XStateTransition{Target: string(t.To)}
		states[string(t.From)] = s
	}
	for _, id := range FinalStates {
		states[string(id)] = XStateStateJSON{Type: "final"}
	}

	return json.MarshalIndent(XStateJSON{
		ID:      "release-pipeline",
		Initial: string(StateEvaluating),
		States:  states,
	}, "", "  ")
}
