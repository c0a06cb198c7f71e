// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender_Send(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := NewHTTPSender()
	err := s.Send(context.Background(), server.URL, map[string]string{"Authorization": "Bearer token"}, []byte(`{"ok":true}`), time.Second)
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, string(gotBody))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, userAgent, gotHeaders.Get("User-Agent"))
	assert.Equal(t, "Bearer token", gotHeaders.Get("Authorization"))
}

func TestHTTPSender_Send_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewHTTPSender().Send(context.Background(), server.URL, nil, []byte(`{}`), time.Second)
	assert.Error(t, err)
}

func TestHTTPSender_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	err := NewHTTPSender().Send(context.Background(), server.URL, nil, []byte(`{}`), 20*time.Millisecond)
	assert.Error(t, err)
}

func TestHTTPSender_Send_InvalidURL(t *testing.T) {
	err := NewHTTPSender().Send(context.Background(), "://bad", nil, nil, time.Second)
	assert.Error(t, err)
}
