package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Functional Validation Tests - Mutation intents

func TestDecodeMutation_AllKinds(t *testing.T) {
	tests := []struct {
		event string
		raw   string
		kind  MutationKind
		want  MutationPayload
	}{
		{"todo_creating", `{"projectCode":"PRJ1","description":"buy milk","priority":4}`, MutationTodoCreated, &TodoCreated{Description: "buy milk", Priority: 4}},
		{"todotag_creating", `{"projectCode":"PRJ1","tag":"home"}`, MutationTodoTagCreated, &TodoTagCreated{Tag: "home"}},
		{"todotag_deleting", `{"projectCode":"PRJ1","tag":"home"}`, MutationTodoTagDeleted, &TodoTagDeleted{Tag: "home"}},
		{"tododesc_editing", `{"projectCode":"PRJ1","description":"buy oat milk"}`, MutationTodoDescEdited, &TodoDescriptionEdited{Description: "buy oat milk"}},
		{"tododetail_editing", `{"projectCode":"PRJ1","detail":"2 litres"}`, MutationTodoDetailEdited, &TodoDetailEdited{Detail: "2 litres"}},
		{"todoprio_editing", `{"projectCode":"PRJ1","priority":9}`, MutationTodoPrioEdited, &TodoPriorityEdited{Priority: 9}},
		{"todocomp_toggling", `{"projectCode":"PRJ1","isCompleted":true}`, MutationTodoCompToggled, &TodoCompleteToggled{IsCompleted: true}},
		{"todoimp_toggling", `{"projectCode":"PRJ1","isImportant":false}`, MutationTodoImpToggled, &TodoImportantToggled{IsImportant: false}},
		{"todo_commenting", `{"projectCode":"PRJ1","comment":"done?"}`, MutationTodoCommented, &TodoCommented{Comment: "done?"}},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			m, err := DecodeMutation(tt.event, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Kind)
			assert.Equal(t, tt.kind, m.Payload.MutationKind())
			assert.Equal(t, "PRJ1", m.ProjectCode)
			assert.Equal(t, tt.want, m.Payload)
		})
	}
}

func TestDecodeMutation_WorkdateAcceptsNulls(t *testing.T) {
	m, err := DecodeMutation("todoworkdate_editing", []byte(`{"projectCode":"PRJ1","dateStart":"2024-01-02","dateEnd":null}`))
	require.NoError(t, err)

	payload, ok := m.Payload.(*TodoWorkdateEdited)
	require.True(t, ok)
	require.NotNil(t, payload.DateStart)
	assert.Equal(t, "2024-01-02", *payload.DateStart)
	assert.Nil(t, payload.DateEnd)
}

func TestDecodeMutation_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		raw     string
		wantErr error
	}{
		{"unknown event", "todo_exploding", `{"projectCode":"PRJ1"}`, ErrUnknownMutation},
		{"not an object", "todo_commenting", `["PRJ1"]`, ErrInvalidPayload},
		{"null payload", "todo_commenting", `null`, ErrInvalidPayload},
		{"missing project code", "todo_commenting", `{"comment":"x"}`, ErrInvalidPayload},
		{"numeric project code", "todo_commenting", `{"projectCode":7,"comment":"x"}`, ErrInvalidPayload},
		{"malformed project code", "todo_commenting", `{"projectCode":"a b","comment":"x"}`, ErrInvalidProjectCode},
		{"missing field", "todo_creating", `{"projectCode":"PRJ1","description":"x"}`, ErrInvalidPayload},
		{"null non-nullable", "todotag_creating", `{"projectCode":"PRJ1","tag":null}`, ErrInvalidPayload},
		{"wrong type", "todoprio_editing", `{"projectCode":"PRJ1","priority":"high"}`, ErrInvalidPayload},
		{"missing nullable", "todoworkdate_editing", `{"projectCode":"PRJ1","dateStart":null}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMutation(tt.event, []byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeMutation_NoBusinessRules(t *testing.T) {
	// Priority range is owned by the write path, not the broker
	m, err := DecodeMutation("todoprio_editing", []byte(`{"projectCode":"PRJ1","priority":-40}`))
	require.NoError(t, err)
	assert.Equal(t, -40, m.Payload.(*TodoPriorityEdited).Priority)
}

func TestDecodeMutation_PayloadTooLarge(t *testing.T) {
	raw := `{"projectCode":"PRJ1","comment":"` + strings.Repeat("x", MaxPayloadBytes) + `"}`
	_, err := DecodeMutation("todo_commenting", []byte(raw))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestMutation_EventKeepsSubmittedBytes(t *testing.T) {
	raw := []byte(`{"projectCode":"PRJ1",  "description":"buy milk","priority":4,"extra":{"k":1}}`)
	m, err := DecodeMutation("todo_creating", raw)
	require.NoError(t, err)

	raw[0] = ' '
	ev := m.Event()
	assert.Equal(t, "todo_created", ev.Name)
	assert.Equal(t, "PRJ1", ev.ProjectCode)
	assert.Equal(t, `{"projectCode":"PRJ1",  "description":"buy milk","priority":4,"extra":{"k":1}}`, string(ev.Payload.(json.RawMessage)))
}

func TestMutationEvents_Complete(t *testing.T) {
	events := MutationEvents()
	assert.Len(t, events, 10)
	assert.IsIncreasing(t, events)
	for _, name := range events {
		assert.True(t, IsMutationEvent(name))
		assert.True(t, strings.HasSuffix(name, "ing"), name)
	}
	assert.False(t, IsMutationEvent(EventJoin))
}
