package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/hifz-notify/internal/notifications"
)

type fakeTokenStore struct {
	mu          sync.Mutex
	deactivated []string
	fail        map[string]bool
}

func (s *fakeTokenStore) DeactivateToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[token] {
		return errors.New("write failed")
	}
	s.deactivated = append(s.deactivated, token)
	return nil
}

func (s *fakeTokenStore) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deactivated...)
}

func errTicket(code string) Ticket {
	return Ticket{Status: StatusError, Message: code, Details: &ErrorDetails{Error: code}}
}

func TestDeactivateInvalidOnlyDeviceNotRegistered(t *testing.T) {
	store := &fakeTokenStore{}
	m := NewTokenManager(store, nil, nil)

	tokens := []string{"a", "b", "c", "d", "e", "f"}
	tickets := []Ticket{
		{Status: StatusOK, ID: "1"},
		errTicket(ErrorDeviceNotRegistered),
		errTicket("MessageTooBig"),
		errTicket(ErrorGatewayUnavailable),
		{Status: StatusError, Message: "no details"},
		errTicket(ErrorDeviceNotRegistered),
	}

	n := m.DeactivateInvalid(t.Context(), tokens, tickets)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b", "f"}, store.tokens())
}

func TestDeactivateInvalidToleratesShortAndDuplicate(t *testing.T) {
	store := &fakeTokenStore{fail: map[string]bool{"z": true}}
	m := NewTokenManager(store, nil, nil)

	tokens := []string{"a", "a", "z"}
	tickets := []Ticket{
		errTicket(ErrorDeviceNotRegistered),
		errTicket(ErrorDeviceNotRegistered),
		errTicket(ErrorDeviceNotRegistered),
		errTicket(ErrorDeviceNotRegistered),
	}

	n := m.DeactivateInvalid(t.Context(), tokens, tickets)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, store.tokens())
}

func TestTicketTokens(t *testing.T) {
	got := TicketTokens(
		[]string{"a", "b", "c"},
		[]Ticket{{Status: StatusOK, ID: "1"}, errTicket("x"), {Status: StatusOK}},
	)
	assert.Equal(t, map[string]string{"1": "a"}, got)
}

type fakeSender struct {
	tickets []Ticket
	err     error
	got     []Message
}

func (s *fakeSender) Send(_ context.Context, msgs []Message) ([]Ticket, error) {
	s.got = append(s.got, msgs...)
	return s.tickets, s.err
}

type fakeFetcher struct {
	mu       sync.Mutex
	receipts map[string]Receipt
	asked    []string
}

func (f *fakeFetcher) CheckReceipts(_ context.Context, ids []string) (map[string]Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, ids...)
	out := make(map[string]Receipt)
	for _, id := range ids {
		if r, ok := f.receipts[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func TestDispatcherDeliver(t *testing.T) {
	store := &fakeTokenStore{}
	tokens := NewTokenManager(store, nil, nil)
	fetcher := &fakeFetcher{receipts: map[string]Receipt{
		"t1": {Status: StatusOK},
		"t3": {Status: StatusError, Details: &ErrorDetails{Error: ErrorDeviceNotRegistered}},
	}}
	receipts := NewReceiptChecker(fetcher, tokens, 0, nil)
	sender := &fakeSender{tickets: []Ticket{
		{Status: StatusOK, ID: "t1"},
		errTicket(ErrorDeviceNotRegistered),
		{Status: StatusOK, ID: "t3"},
	}}
	d := NewDispatcher(sender, tokens, receipts, nil, nil)

	content := notifications.Content{Title: "hi", Body: "there", Data: map[string]string{"type": "x"}}
	msgs := []Message{NewMessage("a", content), NewMessage("b", content), NewMessage("c", content)}

	out := d.Deliver(t.Context(), msgs)
	assert.Equal(t, 2, out.Accepted)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.Deactivated)
	assert.Len(t, sender.got, 3)
	assert.Equal(t, "default", sender.got[0].Sound)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	assert.ElementsMatch(t, []string{"t1", "t3"}, fetcher.asked)
	assert.Equal(t, []string{"b", "c"}, store.tokens())
}

func TestDispatcherDeliverEmpty(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, nil, nil, nil, nil)
	out := d.Deliver(t.Context(), nil)
	assert.Zero(t, out)
	assert.Empty(t, sender.got)
	assert.NoError(t, d.Wait(t.Context()))
}

func TestReceiptCheckerSurvivesCanceledRequest(t *testing.T) {
	store := &fakeTokenStore{}
	fetcher := &fakeFetcher{receipts: map[string]Receipt{
		"t1": {Status: StatusError, Details: &ErrorDetails{Error: ErrorDeviceNotRegistered}},
	}}
	rc := NewReceiptChecker(fetcher, NewTokenManager(store, nil, nil), 10*time.Millisecond, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	rc.Schedule(reqCtx, map[string]string{"t1": "tok"})
	cancel()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, rc.Wait(ctx))
	assert.Equal(t, []string{"tok"}, store.tokens())
}
