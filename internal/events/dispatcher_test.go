package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDispatcher_RunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("smtp down")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketNoteAdded, func(context.Context, Event) error {
		calls = append(calls, "note")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketStatusChanged}))
}
