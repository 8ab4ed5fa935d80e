package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dgraph-io/badger/v3"

	"github.com/teemow/calbot/internal/logging"
)

// BadgerOptions configures the embedded badger backend.
type BadgerOptions struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// BadgerBackend stores records in an embedded badger database.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens (or creates) the badger database.
func NewBadgerBackend(opts BadgerOptions) (*BadgerBackend, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("badger directory is required")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(logging.NewPrintfAdapter(logging.WithComponent(loggerOrDefault(opts.Logger), "badger")))

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(userID int64) []byte {
	return []byte("user:" + strconv.FormatInt(userID, 10))
}

// Get reads the user's record.
func (b *BadgerBackend) Get(_ context.Context, userID int64) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(userID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes the user's record in a single transaction.
func (b *BadgerBackend) Put(_ context.Context, userID int64, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(userID), data)
	})
}

// Delete removes the user's record.
func (b *BadgerBackend) Delete(_ context.Context, userID int64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(userID))
	})
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
