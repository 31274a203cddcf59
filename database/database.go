// Package database keeps session OAuth state in SQLite.
package database

import (
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moul.io/zapgorm2"

	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Database struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewDatabase(path string) (*Database, error) {
	logger := zapgorm2.New(zap.L().Named("gorm"))
	logger.IgnoreRecordNotFoundError = true
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Database{db: db, log: zap.S().Named("database")}, nil
}

// Open opens the database at path and brings its schema up to date.
func Open(path string) (*Database, error) {
	d, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) Migrate() error {
	d.log.Info("running database migrations")
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch err {
	case nil:
		d.log.Info("database migration complete")
	case migrate.ErrNoChange:
		d.log.Debug("no database migration required")
	default:
		return err
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type Token struct {
	SessionID    string `gorm:"primaryKey"`
	AccessToken  string
	TokenType    string
	RefreshToken string
	Expiry       time.Time
	UpdatedAt    time.Time
}

func (Token) TableName() string {
	return "token"
}

type Credential struct {
	SessionID    string `gorm:"primaryKey"`
	ClientID     string
	ClientSecret string
	RedirectURI  string `gorm:"column:redirect_uri"`
	UpdatedAt    time.Time
}

func (Credential) TableName() string {
	return "credential"
}

func (d *Database) GetToken(sessionID string) (*oauth2.Token, error) {
	var t Token
	if err := d.db.Where("session_id = ?", sessionID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNoToken
		}
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}, nil
}

// PutToken inserts or replaces the session's token.
func (d *Database) PutToken(sessionID string, token *oauth2.Token) error {
	return d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&Token{
		SessionID:    sessionID,
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}).Error
}

func (d *Database) DeleteToken(sessionID string) error {
	return d.db.Where("session_id = ?", sessionID).Delete(&Token{}).Error
}

func (d *Database) GetCredentials(sessionID string) (*session.Credentials, error) {
	var c Credential
	if err := d.db.Where("session_id = ?", sessionID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNoCredentials
		}
		return nil, err
	}
	return &session.Credentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret, RedirectURI: c.RedirectURI}, nil
}

// PutCredentials inserts or replaces the session's credentials.
func (d *Database) PutCredentials(sessionID string, creds *session.Credentials) error {
	return d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&Credential{
		SessionID:    sessionID,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURI:  creds.RedirectURI,
	}).Error
}
