// Package boltdb keeps session OAuth state in a bbolt file.
package boltdb

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/oauth2"

	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
)

var Buckets = struct {
	Metadata    []byte
	Tokens      []byte
	Credentials []byte
}{
	Metadata:    []byte("__metadata__"),
	Tokens:      []byte("tokens"),
	Credentials: []byte("credentials"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type database struct {
	*bbolt.DB
}

func New(path string) (_ session.Database, err error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		for _, name := range [][]byte{Buckets.Tokens, Buckets.Credentials} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("database version %d is newer than supported version %d", version, currentVersion)
		}

		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{db}, nil
}

func (d *database) get(bucket []byte, key string, missing error, v any) error {
	return d.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return missing
		}
		return json.Unmarshal(data, v)
	})
}

func (d *database) put(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (d *database) GetToken(sessionID string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := d.get(Buckets.Tokens, sessionID, session.ErrNoToken, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (d *database) PutToken(sessionID string, token *oauth2.Token) error {
	return d.put(Buckets.Tokens, sessionID, token)
}

func (d *database) DeleteToken(sessionID string) error {
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Tokens).Delete([]byte(sessionID))
	})
}

func (d *database) GetCredentials(sessionID string) (*session.Credentials, error) {
	var creds session.Credentials
	if err := d.get(Buckets.Credentials, sessionID, session.ErrNoCredentials, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (d *database) PutCredentials(sessionID string, creds *session.Credentials) error {
	return d.put(Buckets.Credentials, sessionID, creds)
}
