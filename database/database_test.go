package database

import (
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session/sessiontest"
)

var _ session.Database = &Database{}

func TestDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "sessions.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	sessiontest.DatabaseContract(t, db)
}

func TestDatabase_MigrateTwice(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "sessions.sqlite")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.PutCredentials("s1", &session.Credentials{ClientID: "id", ClientSecret: "secret"}))
	require.NoError(t, db.PutToken("s1", &oauth2.Token{AccessToken: "a"}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(db.Migrate())
	creds, err := db.GetCredentials("s1")
	assert.NoError(err)
	assert.Equal("id", creds.ClientID)
}
