package receipt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/queue"
)

type fakeSource struct {
	ch         channel.Channel
	receipts   []Receipt
	confirmErr error
	confirmed  []string
}

func (s *fakeSource) Channel() channel.Channel { return s.ch }

func (s *fakeSource) Poll(ctx context.Context) ([]Receipt, error) {
	return s.receipts, nil
}

func (s *fakeSource) Confirm(ctx context.Context, externalID string) error {
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed = append(s.confirmed, externalID)
	return nil
}

// inFlightEntry arranges an IN_FLIGHT queue entry for the conversation.
func inFlightEntry(t *testing.T, store *queue.MemoryStore, conversationID string, ch channel.Channel) {
	t.Helper()
	_, err := store.Enqueue(context.Background(), &queue.Entry{
		ID:             queue.EntryID(conversationID, ch),
		ConversationID: conversationID,
		Channel:        ch,
		Status:         queue.StatusPending,
	})
	require.NoError(t, err)
	_, claimed, err := store.MarkInFlight(context.Background(), queue.EntryID(conversationID, ch))
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestPollOnce_AppliesOKReceipt(t *testing.T) {
	store := queue.NewMemoryStore()
	inFlightEntry(t, store, "conv-1", channel.DPO)

	source := &fakeSource{ch: channel.DPO, receipts: []Receipt{
		{ConversationID: "conv-1", ExternalID: "ext-1", Status: StatusOK},
	}}
	r := NewReconciler(store, []Source{source}, nil, nil)
	r.PollOnce(context.Background())

	e, err := store.Get(context.Background(), "conv-1:DPO")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSent, e.Status)
	assert.Equal(t, "ext-1", e.ExternalID)
	assert.Equal(t, []string{"ext-1"}, source.confirmed, "confirmation issued exactly once")
}

func TestPollOnce_ConfirmsOnlyOnceAcrossPolls(t *testing.T) {
	store := queue.NewMemoryStore()
	inFlightEntry(t, store, "conv-1", channel.DPO)

	source := &fakeSource{ch: channel.DPO, receipts: []Receipt{
		{ConversationID: "conv-1", ExternalID: "ext-1", Status: StatusOK},
	}}
	r := NewReconciler(store, []Source{source}, nil, nil)

	// The source keeps returning the receipt; the local confirmed set keeps
	// the reconciler from re-confirming.
	r.PollOnce(context.Background())
	r.PollOnce(context.Background())
	r.PollOnce(context.Background())

	assert.Equal(t, []string{"ext-1"}, source.confirmed)
}

func TestPollOnce_ErrorReceiptAbandonsEntry(t *testing.T) {
	store := queue.NewMemoryStore()
	inFlightEntry(t, store, "conv-1", channel.DPO)

	source := &fakeSource{ch: channel.DPO, receipts: []Receipt{
		{ConversationID: "conv-1", ExternalID: "ext-1", Status: StatusError},
	}}
	r := NewReconciler(store, []Source{source}, nil, nil)
	r.PollOnce(context.Background())

	e, err := store.Get(context.Background(), "conv-1:DPO")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusAbandoned, e.Status)
}

func TestPollOnce_UnknownConversationRejected(t *testing.T) {
	store := queue.NewMemoryStore()

	source := &fakeSource{ch: channel.DPO, receipts: []Receipt{
		{ConversationID: "ghost", ExternalID: "ext-1", Status: StatusOK},
	}}
	r := NewReconciler(store, []Source{source}, nil, nil)
	r.PollOnce(context.Background())

	assert.Empty(t, source.confirmed, "a receipt we cannot match must not be confirmed")
	_, err := store.Get(context.Background(), "ghost:DPO")
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func TestPollOnce_PendingEntryLeftUntouched(t *testing.T) {
	store := queue.NewMemoryStore()
	_, err := store.Enqueue(context.Background(), &queue.Entry{
		ID:             queue.EntryID("conv-1", channel.DPO),
		ConversationID: "conv-1",
		Channel:        channel.DPO,
		Status:         queue.StatusPending,
	})
	require.NoError(t, err)

	source := &fakeSource{ch: channel.DPO, receipts: []Receipt{
		{ConversationID: "conv-1", ExternalID: "ext-1", Status: StatusOK},
	}}
	r := NewReconciler(store, []Source{source}, nil, nil)
	r.PollOnce(context.Background())

	e, err := store.Get(context.Background(), "conv-1:DPO")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, e.Status, "out-of-order receipt must not move a PENDING entry")
	assert.Empty(t, source.confirmed)
}

func TestPollOnce_ConfirmFailureRetriedNextPoll(t *testing.T) {
	store := queue.NewMemoryStore()
	inFlightEntry(t, store, "conv-1", channel.DPO)

	source := &fakeSource{
		ch:         channel.DPO,
		receipts:   []Receipt{{ConversationID: "conv-1", ExternalID: "ext-1", Status: StatusOK}},
		confirmErr: errors.New("channel unavailable"),
	}
	r := NewReconciler(store, []Source{source}, nil, nil)
	r.PollOnce(context.Background())

	// The entry is settled but the confirmation is still owed.
	e, err := store.Get(context.Background(), "conv-1:DPO")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSent, e.Status)
	assert.Empty(t, source.confirmed)

	source.confirmErr = nil
	r.PollOnce(context.Background())
	assert.Equal(t, []string{"ext-1"}, source.confirmed)
}

func TestPollOnce_ChannelScoping(t *testing.T) {
	// A receipt from the DPF feed must not settle the DPO entry for the
	// same conversation.
	store := queue.NewMemoryStore()
	inFlightEntry(t, store, "conv-1", channel.DPO)

	source := &fakeSource{ch: channel.DPF, receipts: []Receipt{
		{ConversationID: "conv-1", ExternalID: "ext-1", Status: StatusOK},
	}}
	r := NewReconciler(store, []Source{source}, nil, nil)
	r.PollOnce(context.Background())

	e, err := store.Get(context.Background(), "conv-1:DPO")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusInFlight, e.Status)
	assert.Empty(t, source.confirmed)
}
