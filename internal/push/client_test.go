package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records request sizes and answers with one ticket per message
// whose id is derived from the token.
type fakeGateway struct {
	mu        sync.Mutex
	sendSizes []int
	idSizes   []int
	auth      []string
	failCall  int // 1-based /send call to fail with 500
	shortBy   int // drop this many tickets from every response
}

func (g *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		var msgs []Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msgs))

		g.mu.Lock()
		g.sendSizes = append(g.sendSizes, len(msgs))
		g.auth = append(g.auth, r.Header.Get("Authorization"))
		call := len(g.sendSizes)
		g.mu.Unlock()

		if call == g.failCall {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		tickets := make([]Ticket, 0, len(msgs))
		for _, m := range msgs[:len(msgs)-g.shortBy] {
			tickets = append(tickets, Ticket{Status: StatusOK, ID: "ticket-" + m.To})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": tickets})
	})
	mux.HandleFunc("POST /getReceipts", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		g.mu.Lock()
		g.idSizes = append(g.idSizes, len(req.IDs))
		g.mu.Unlock()

		data := make(map[string]Receipt, len(req.IDs))
		for _, id := range req.IDs {
			data[id] = Receipt{Status: StatusOK}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	return mux
}

func messages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{To: fmt.Sprintf("tok-%d", i), Title: "t", Body: "b"}
	}
	return out
}

func TestSendChunksAndPreservesOrder(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0, nil)
	tickets, err := c.Send(t.Context(), messages(250))
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 50}, gw.sendSizes)
	require.Len(t, tickets, 250)
	for i, tk := range tickets {
		assert.Equal(t, fmt.Sprintf("ticket-tok-%d", i), tk.ID)
	}
}

func TestSendPadsFailedChunk(t *testing.T) {
	gw := &fakeGateway{failCall: 2}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0, nil)
	tickets, err := c.Send(t.Context(), messages(250))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	require.Len(t, tickets, 250)
	assert.Equal(t, "ticket-tok-99", tickets[99].ID)
	for i := 100; i < 200; i++ {
		assert.Equal(t, StatusError, tickets[i].Status)
		require.NotNil(t, tickets[i].Details)
		assert.Equal(t, ErrorGatewayUnavailable, tickets[i].Details.Error)
		assert.False(t, tickets[i].DeviceNotRegistered())
	}
	assert.Equal(t, "ticket-tok-200", tickets[200].ID)
}

func TestSendPadsShortTicketArray(t *testing.T) {
	gw := &fakeGateway{shortBy: 1}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0, nil)
	tickets, err := c.Send(t.Context(), messages(3))
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.True(t, tickets[1].OK())
	assert.Equal(t, StatusError, tickets[2].Status)
}

func TestSendTreatsErrorEnvelopeAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"code":"PUSH_TOO_MANY_EXPERIENCE_IDS","message":"mixed projects"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0, nil)
	tickets, err := c.Send(t.Context(), messages(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUSH_TOO_MANY_EXPERIENCE_IDS")
	require.Len(t, tickets, 2)
	assert.Equal(t, ErrorGatewayUnavailable, tickets[0].Details.Error)
}

func TestSendAccessToken(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	_, err := NewClient(srv.URL, "secret", 0, nil).Send(t.Context(), messages(1))
	require.NoError(t, err)
	_, err = NewClient(srv.URL, "", 0, nil).Send(t.Context(), messages(1))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer secret", ""}, gw.auth)
}

func TestSendEmpty(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", 0, nil)
	tickets, err := c.Send(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestCheckReceiptsChunks(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	ids := make([]string, 2500)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	receipts, err := NewClient(srv.URL, "", 0, nil).CheckReceipts(t.Context(), ids)
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1000, 500}, gw.idSizes)
	assert.Len(t, receipts, 2500)
	assert.Equal(t, StatusOK, receipts["id-2499"].Status)
}

func TestCheckReceiptsReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	receipts, err := NewClient(srv.URL, "", 0, nil).CheckReceipts(t.Context(), []string{"a"})
	require.Error(t, err)
	assert.Empty(t, receipts)
}
