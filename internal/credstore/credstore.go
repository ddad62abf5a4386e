// Package credstore resolves EDHOC credential identifiers to peer
// credentials: a gorm-backed store keyed by the COSE ID_CRED byte string,
// with the driver selected by a plain "sqlite"|"postgres" type string.
package credstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/go-edhoc/edhoc-oscore/edhoc"
)

// credential is the gorm row for one peer's EDHOC credential, keyed by
// the hex-encoded ID_CRED that appears on the wire.
type credential struct {
	IDCredHex  string `gorm:"primaryKey"`
	Cred       []byte
	SignPK     []byte
	StaticDHPK []byte
}

func (credential) TableName() string { return "edhoc_credentials" }

// Store is a gorm-backed credential lookup. Its Fetch method has the
// edhoc.CredFetcher signature and can be passed directly to
// Session.ParseMessage2 and Session.ParseMessage3.
type Store struct {
	db *gorm.DB
}

// Open selects a driver by dbType ("sqlite" or "postgres") and
// auto-migrates the credential table.
func Open(dbType, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("credstore: dsn is required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(dbType) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("credstore: unsupported database type %q (must be 'sqlite' or 'postgres')", dbType)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", dbType, err)
	}
	if err := db.AutoMigrate(&credential{}); err != nil {
		return nil, fmt.Errorf("credstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Put registers a peer's credential under idCred, replacing any prior
// entry for the same identifier.
func (s *Store) Put(idCred, cred, signPK, staticDHPK []byte) error {
	row := credential{
		IDCredHex:  hex.EncodeToString(idCred),
		Cred:       cred,
		SignPK:     signPK,
		StaticDHPK: staticDHPK,
	}
	return s.db.Save(&row).Error
}

// Fetch implements edhoc.CredFetcher: resolve idCred to the peer's
// StaticKeys (only the public halves and CRED/ID_CRED are populated, per
// CredFetcher's contract).
func (s *Store) Fetch(idCred []byte) (edhoc.StaticKeys, error) {
	var row credential
	key := hex.EncodeToString(idCred)
	if err := s.db.First(&row, "id_cred_hex = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return edhoc.StaticKeys{}, fmt.Errorf("credstore: no credential registered for ID_CRED %s", key)
		}
		return edhoc.StaticKeys{}, fmt.Errorf("credstore: lookup %s: %w", key, err)
	}
	return edhoc.StaticKeys{
		Cred:       row.Cred,
		IDCred:     idCred,
		SignPK:     row.SignPK,
		StaticDHPK: row.StaticDHPK,
	}, nil
}
