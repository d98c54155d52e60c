package keychain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/paperbase-app/paperbase/types"
)

func testConn() *types.Connection {
	return &types.Connection{ID: "conn-1", Provider: types.ProviderDropbox}
}

func TestSaveTokenRoundTrip(t *testing.T) {
	keyring.MockInit()
	s := NewStore(nil)
	conn := testConn()

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	require.NoError(t, s.Save(conn, tok))

	got, err := s.Token(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
}

func TestTokenMissing(t *testing.T) {
	keyring.MockInit()
	s := NewStore(nil)

	_, err := s.Token(context.Background(), testConn())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindAuthExpired))
}

func TestTokenExpiredWithoutRefreshToken(t *testing.T) {
	keyring.MockInit()
	s := NewStore(map[types.Provider]*oauth2.Config{
		types.ProviderDropbox: {ClientID: "id"},
	})
	conn := testConn()

	require.NoError(t, s.Save(conn, &oauth2.Token{
		AccessToken: "stale",
		Expiry:      time.Now().Add(-time.Hour),
	}))

	_, err := s.Token(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindAuthExpired))
	assert.Contains(t, err.Error(), "reauthorize")
}

func TestRefreshWithoutConfig(t *testing.T) {
	keyring.MockInit()
	s := NewStore(nil)
	conn := testConn()

	require.NoError(t, s.Save(conn, &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
	}))

	_, err := s.Refresh(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindAuthExpired))
}

func TestTokenScopedPerConnection(t *testing.T) {
	keyring.MockInit()
	s := NewStore(nil)

	first := testConn()
	second := &types.Connection{ID: "conn-2", Provider: types.ProviderDropbox}

	require.NoError(t, s.Save(first, &oauth2.Token{
		AccessToken: "first",
		Expiry:      time.Now().Add(time.Hour),
	}))

	_, err := s.Token(context.Background(), second)
	require.Error(t, err)

	got, err := s.Token(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "first", got.AccessToken)
}

func TestDeleteTolerantOfMissing(t *testing.T) {
	keyring.MockInit()
	s := NewStore(nil)
	conn := testConn()

	require.NoError(t, s.Delete(conn))

	require.NoError(t, s.Save(conn, &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}))
	require.NoError(t, s.Delete(conn))
	_, err := s.Token(context.Background(), conn)
	require.Error(t, err)
}
