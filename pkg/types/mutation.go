package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MutationKind is the outbound event name relayed to room members after a task changed
type MutationKind string

const (
	MutationTodoCreated        MutationKind = "todo_created"
	MutationTodoTagCreated     MutationKind = "todotag_created"
	MutationTodoTagDeleted     MutationKind = "todotag_deleted"
	MutationTodoDescEdited     MutationKind = "tododesc_edited"
	MutationTodoDetailEdited   MutationKind = "tododetail_edited"
	MutationTodoPrioEdited     MutationKind = "todoprio_edited"
	MutationTodoCompToggled    MutationKind = "todocomp_toggled"
	MutationTodoImpToggled     MutationKind = "todoimp_toggled"
	MutationTodoCommented      MutationKind = "todo_commented"
	MutationTodoWorkdateEdited MutationKind = "todoworkdate_edited"
)

// MutationPayload is implemented by the typed field set of every mutation kind
type MutationPayload interface {
	MutationKind() MutationKind
}

type TodoCreated struct {
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

type TodoTagCreated struct {
	Tag string `json:"tag"`
}

type TodoTagDeleted struct {
	Tag string `json:"tag"`
}

type TodoDescriptionEdited struct {
	Description string `json:"description"`
}

type TodoDetailEdited struct {
	Detail string `json:"detail"`
}

type TodoPriorityEdited struct {
	Priority int `json:"priority"`
}

type TodoCompleteToggled struct {
	IsCompleted bool `json:"isCompleted"`
}

type TodoImportantToggled struct {
	IsImportant bool `json:"isImportant"`
}

type TodoCommented struct {
	Comment string `json:"comment"`
}

// TodoWorkdateEdited carries nullable dates; a null clears the bound
type TodoWorkdateEdited struct {
	DateStart *string `json:"dateStart"`
	DateEnd   *string `json:"dateEnd"`
}

func (TodoCreated) MutationKind() MutationKind           { return MutationTodoCreated }
func (TodoTagCreated) MutationKind() MutationKind        { return MutationTodoTagCreated }
func (TodoTagDeleted) MutationKind() MutationKind        { return MutationTodoTagDeleted }
func (TodoDescriptionEdited) MutationKind() MutationKind { return MutationTodoDescEdited }
func (TodoDetailEdited) MutationKind() MutationKind      { return MutationTodoDetailEdited }
func (TodoPriorityEdited) MutationKind() MutationKind    { return MutationTodoPrioEdited }
func (TodoCompleteToggled) MutationKind() MutationKind   { return MutationTodoCompToggled }
func (TodoImportantToggled) MutationKind() MutationKind  { return MutationTodoImpToggled }
func (TodoCommented) MutationKind() MutationKind         { return MutationTodoCommented }
func (TodoWorkdateEdited) MutationKind() MutationKind    { return MutationTodoWorkdateEdited }

type requiredField struct {
	name     string
	nullable bool
}

type mutationShape struct {
	kind     MutationKind
	required []requiredField
	payload  func() MutationPayload
}

// mutationShapes maps the inbound "-ing" event name to its relay kind and field set
var mutationShapes = map[string]mutationShape{
	"todo_creating": {
		kind:     MutationTodoCreated,
		required: []requiredField{{name: "description"}, {name: "priority"}},
		payload:  func() MutationPayload { return &TodoCreated{} },
	},
	"todotag_creating": {
		kind:     MutationTodoTagCreated,
		required: []requiredField{{name: "tag"}},
		payload:  func() MutationPayload { return &TodoTagCreated{} },
	},
	"todotag_deleting": {
		kind:     MutationTodoTagDeleted,
		required: []requiredField{{name: "tag"}},
		payload:  func() MutationPayload { return &TodoTagDeleted{} },
	},
	"tododesc_editing": {
		kind:     MutationTodoDescEdited,
		required: []requiredField{{name: "description"}},
		payload:  func() MutationPayload { return &TodoDescriptionEdited{} },
	},
	"tododetail_editing": {
		kind:     MutationTodoDetailEdited,
		required: []requiredField{{name: "detail"}},
		payload:  func() MutationPayload { return &TodoDetailEdited{} },
	},
	"todoprio_editing": {
		kind:     MutationTodoPrioEdited,
		required: []requiredField{{name: "priority"}},
		payload:  func() MutationPayload { return &TodoPriorityEdited{} },
	},
	"todocomp_toggling": {
		kind:     MutationTodoCompToggled,
		required: []requiredField{{name: "isCompleted"}},
		payload:  func() MutationPayload { return &TodoCompleteToggled{} },
	},
	"todoimp_toggling": {
		kind:     MutationTodoImpToggled,
		required: []requiredField{{name: "isImportant"}},
		payload:  func() MutationPayload { return &TodoImportantToggled{} },
	},
	"todo_commenting": {
		kind:     MutationTodoCommented,
		required: []requiredField{{name: "comment"}},
		payload:  func() MutationPayload { return &TodoCommented{} },
	},
	"todoworkdate_editing": {
		kind:     MutationTodoWorkdateEdited,
		required: []requiredField{{name: "dateStart", nullable: true}, {name: "dateEnd", nullable: true}},
		payload:  func() MutationPayload { return &TodoWorkdateEdited{} },
	},
}

// Mutation is a validated mutation intent ready for fan-out.
// Raw holds the payload exactly as the client submitted it.
type Mutation struct {
	Kind        MutationKind
	ProjectCode string
	Payload     MutationPayload
	Raw         json.RawMessage
}

// Event builds the relay event. The submitted bytes are forwarded unmodified.
func (m *Mutation) Event() Event {
	return Event{Name: string(m.Kind), ProjectCode: m.ProjectCode, Payload: m.Raw}
}

// IsMutationEvent reports whether name is one of the inbound mutation intents
func IsMutationEvent(name string) bool {
	_, ok := mutationShapes[name]
	return ok
}

// MutationEvents lists every inbound mutation intent name in a stable order
func MutationEvents() []string {
	names := make([]string, 0, len(mutationShapes))
	for name := range mutationShapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeMutation validates the shape of an inbound mutation intent.
// Only presence and JSON types are checked; field values are not interpreted.
func DecodeMutation(event string, raw []byte) (*Mutation, error) {
	shape, ok := mutationShapes[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMutation, event)
	}

	if len(raw) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}

	code, err := decodeProjectCode(fields)
	if err != nil {
		return nil, err
	}

	for _, field := range shape.required {
		value, present := fields[field.name]
		if !present {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidPayload, field.name)
		}
		if !field.nullable && isJSONNull(value) {
			return nil, fmt.Errorf("%w: field %q cannot be null", ErrInvalidPayload, field.name)
		}
	}

	payload := shape.payload()
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return &Mutation{
		Kind:        shape.kind,
		ProjectCode: code,
		Payload:     payload,
		Raw:         json.RawMessage(append([]byte(nil), raw...)),
	}, nil
}

func decodeProjectCode(fields map[string]json.RawMessage) (string, error) {
	value, present := fields["projectCode"]
	if !present {
		return "", fmt.Errorf("%w: missing field %q", ErrInvalidPayload, "projectCode")
	}
	var code string
	if err := json.Unmarshal(value, &code); err != nil {
		return "", fmt.Errorf("%w: projectCode must be a string", ErrInvalidPayload)
	}
	if !IsValidProjectCode(code) {
		return "", ErrInvalidProjectCode
	}
	return code, nil
}

func isJSONNull(value json.RawMessage) bool {
	return string(value) == "null"
}
