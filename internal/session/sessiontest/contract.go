// Package sessiontest checks session.Database implementations against the same behaviour.
package sessiontest

import (
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
)

// DatabaseContract exercises any Database implementation.
func DatabaseContract(t *testing.T, db session.Database) {
	assert := assert_.New(t)

	_, err := db.GetToken("s1")
	assert.ErrorIs(err, session.ErrNoToken)
	_, err = db.GetCredentials("s1")
	assert.ErrorIs(err, session.ErrNoCredentials)

	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, db.PutToken("s1", &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}))
	token, err := db.GetToken("s1")
	require.NoError(t, err)
	assert.Equal("a", token.AccessToken)
	assert.Equal("r", token.RefreshToken)
	assert.True(expiry.Equal(token.Expiry))
	_, err = db.GetToken("s2")
	assert.ErrorIs(err, session.ErrNoToken)

	require.NoError(t, db.PutToken("s1", &oauth2.Token{AccessToken: "b", RefreshToken: "r"}))
	token, _ = db.GetToken("s1")
	assert.Equal("b", token.AccessToken)

	assert.NoError(db.DeleteToken("s1"))
	_, err = db.GetToken("s1")
	assert.ErrorIs(err, session.ErrNoToken)
	assert.NoError(db.DeleteToken("s1"))

	creds := &session.Credentials{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost/cb"}
	require.NoError(t, db.PutCredentials("s1", creds))
	got, err := db.GetCredentials("s1")
	require.NoError(t, err)
	assert.Equal(creds, got)
}
