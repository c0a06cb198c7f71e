// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/inflight/purge/memory"
	"github.com/absmach/inflight/slot"
	"github.com/absmach/inflight/tracker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPurger struct {
	store *memory.Store
	err   error
}

func (m *mockPurger) Purge(destination string) error {
	if m.err != nil {
		return m.err
	}
	return m.store.MarkPurged(destination, time.UnixMilli(1_700_000_000_000))
}

func newTestServer(t *testing.T) (*Server, *tracker.Tracker, *mockPurger) {
	t.Helper()

	purges := memory.New()
	tr, err := tracker.New(tracker.Config{MaxRedeliveryAttempts: 3}, slot.NewWorkers(), purges)
	require.NoError(t, err)

	purger := &mockPurger{store: purges}
	s := New(Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second, NodeID: "node-1"}, tr, purger, purges, nil)
	return s, tr, purger
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)

	rec = do(t, s, http.MethodPost, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStatusAndPurge(t *testing.T) {
	s, tr, _ := newTestServer(t)
	require.True(t, tr.BufferIfAbsent(slot.New("orders", "orders", 1, 10), tracker.Metadata{MessageID: 1, ArrivalAt: time.Now()}))

	rec := do(t, s, http.MethodPost, "/purges/orders")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "node-1", resp.NodeID)
	assert.Equal(t, 1, resp.Tracked)
	require.Len(t, resp.Purges, 1)
	assert.Equal(t, "orders", resp.Purges[0].Destination)
}

func TestHandlePurgeError(t *testing.T) {
	s, _, purger := newTestServer(t)
	purger.err = errors.New("store closed")

	rec := do(t, s, http.MethodPost, "/purges/orders")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleMessage(t *testing.T) {
	s, tr, _ := newTestServer(t)
	require.True(t, tr.BufferIfAbsent(slot.New("orders", "orders", 1, 10), tracker.Metadata{MessageID: 7, ArrivalAt: time.Now()}))

	rec := do(t, s, http.MethodGet, "/messages/7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(7), resp.MessageID)
	assert.Equal(t, "BUFFERED", resp.Status)
	assert.Equal(t, []string{"BUFFERED"}, resp.History)
	assert.False(t, resp.Removable)

	ch := uuid.New()
	tr.RegisterChannel(ch)
	_, err := tr.RegisterSend(ch, 7)
	require.NoError(t, err)
	_, err = tr.HandleAck(ch, 7)
	require.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/messages/7")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = MessageResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ACKED_BY_ALL", resp.Status)
	assert.True(t, resp.Removable)

	rec = do(t, s, http.MethodGet, "/messages/8")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/messages/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDump(t *testing.T) {
	s, tr, _ := newTestServer(t)
	require.True(t, tr.BufferIfAbsent(slot.New("orders", "orders", 1, 10), tracker.Metadata{MessageID: 1, ArrivalAt: time.Now()}))

	rec := do(t, s, http.MethodGet, "/dump")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tracker.DumpHeader, rows[0])
	assert.Equal(t, "1", rows[1][0])
}

func TestListen(t *testing.T) {
	s, _, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Listen(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
