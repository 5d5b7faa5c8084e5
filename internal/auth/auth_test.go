package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"davgate/internal/auth"
)

func TestBasicAuthEngine(t *testing.T) {
	t.Parallel()

	engine := auth.NewBasicAuthEngine("alice", "secret")
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	user, err := engine.AuthenticateRequest(ctx, req)
	require.NoError(t, err, "AuthenticateRequest error")
	require.Nil(t, user, "no Authorization header yields no user")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "wrong")
	user, err = engine.AuthenticateRequest(ctx, req)
	require.NoError(t, err, "AuthenticateRequest error")
	require.Nil(t, user, "bad password yields no user")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("mallory", "secret")
	user, err = engine.AuthenticateRequest(ctx, req)
	require.NoError(t, err, "AuthenticateRequest error")
	require.Nil(t, user, "unknown user yields no user")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "secret")
	user, err = engine.AuthenticateRequest(ctx, req)
	require.NoError(t, err, "AuthenticateRequest error")
	require.NotNil(t, user, "valid credentials yield a user")
	require.Equal(t, "alice", user.Name, "user name")
}

func TestCompoundAuthEngine(t *testing.T) {
	t.Parallel()

	engine := auth.NewCompoundAuthEngine(
		auth.NewBasicAuthEngine("alice", "secret"),
		auth.NewBasicAuthEngine("bob", "hunter2"),
	)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("bob", "hunter2")
	user, err := engine.AuthenticateRequest(ctx, req)
	require.NoError(t, err, "AuthenticateRequest error")
	require.NotNil(t, user, "a later engine can accept the request")
	require.Equal(t, "bob", user.Name, "user name")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("bob", "wrong")
	user, err = engine.AuthenticateRequest(ctx, req)
	require.NoError(t, err, "AuthenticateRequest error")
	require.Nil(t, user, "no engine accepts bad credentials")
}
