// Package folder is the reference aggregate: a named folder that is created
// once and may be renamed any number of times.
package folder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/underthemoss/esengine/aggregate"
	"github.com/underthemoss/esengine/event"
)

// AggregateType is stored on every folder event and must not change.
const AggregateType = "folder"

// Event types produced by the folder aggregate.
const (
	EventCreated event.EventType = "folder_created"
	EventRenamed event.EventType = "folder_renamed"
)

// Command kinds accepted by ParseCommand.
const (
	KindCreate = "create_folder"
	KindRename = "rename_folder"
)

// Validation messages.
const (
	ReasonAlreadyCreated = "Folder already created"
	ReasonMissingName    = "Folder must have a name"
	ReasonNotCreated     = "Folder does not exist"
)

// State is the folder as derived from its history.
type State struct {
	FolderID string `json:"folder_id"`
	Name     string `json:"name"`
}

// Exists reports whether the folder has been created.
func (s State) Exists() bool {
	return s.FolderID != ""
}

// ID returns the folder's aggregate ID.
func (s State) ID() string {
	return s.FolderID
}

// Command is the closed set of folder commands.
type Command interface {
	Kind() string
	isCommand()
}

// CreateFolder creates a new folder.
type CreateFolder struct {
	Name string `json:"name"`
}

// RenameFolder changes the name of an existing folder.
type RenameFolder struct {
	Name string `json:"name"`
}

func (CreateFolder) Kind() string { return KindCreate }
func (RenameFolder) Kind() string { return KindRename }
func (CreateFolder) isCommand()   {}
func (RenameFolder) isCommand()   {}

// CreatedData is the payload of folder_created events.
type CreatedData struct {
	Name string `json:"name"`
}

// RenamedData is the payload of folder_renamed events.
type RenamedData struct {
	Name string `json:"name"`
}

// ErrUnknownCommand is returned by ParseCommand for an unsupported kind.
var ErrUnknownCommand = errors.New("unknown folder command")

// ParseCommand decodes transport input into a Command.
func ParseCommand(kind string, raw json.RawMessage) (Command, error) {
	var cmd Command
	switch kind {
	case KindCreate:
		var c CreateFolder
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		cmd = c
	case KindRename:
		var c RenameFolder
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		cmd = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
	return cmd, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode folder command: %w", err)
	}
	return nil
}

// definition implements aggregate.Definition for folders.
type definition struct{}

// Definition returns the folder aggregate definition.
func Definition() aggregate.Definition[Command, State] {
	return definition{}
}

func (definition) AggregateType() string {
	return AggregateType
}

func (definition) InitialState() State {
	return State{}
}

func (definition) ProcessEvent(state State, e event.Event) (State, error) {
	switch e.Type {
	case EventCreated:
		data, err := event.UnmarshalData[CreatedData](e)
		if err != nil {
			return state, err
		}
		return State{FolderID: e.AggregateID, Name: data.Name}, nil
	case EventRenamed:
		data, err := event.UnmarshalData[RenamedData](e)
		if err != nil {
			return state, err
		}
		state.Name = data.Name
		return state, nil
	default:
		return state, &aggregate.UnknownEventError{AggregateType: AggregateType, Type: e.Type}
	}
}

func (definition) ProcessCommand(cmd Command, state State, c aggregate.Context) (event.Event, error) {
	switch cmd := cmd.(type) {
	case CreateFolder:
		if state.Exists() {
			return event.Event{}, aggregate.Rejectf(ReasonAlreadyCreated)
		}
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return event.Event{}, aggregate.Rejectf(ReasonMissingName)
		}
		return c.NewEvent(EventCreated, CreatedData{Name: name})
	case RenameFolder:
		if !state.Exists() {
			return event.Event{}, aggregate.Rejectf(ReasonNotCreated)
		}
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return event.Event{}, aggregate.Rejectf(ReasonMissingName)
		}
		return c.NewEvent(EventRenamed, RenamedData{Name: name})
	default:
		return event.Event{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}
