// Package store はユーザー資格情報を保持する組み込みKVストア (badger) です。
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"biz-insight-api/pkg/models"

	"github.com/dgraph-io/badger/v4"
)

const userPrefix = "user_"

var (
	// ErrUserExists は同名のユーザーが登録済みであることを示します。
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound はユーザーが存在しないことを示します。
	ErrUserNotFound = errors.New("user not found")
)

// DB はbadgerのラッパーです。
type DB struct {
	badgerDB *badger.DB
}

// Open はdirにデータベースを開きます。dirが空ならメモリ上に作成します。
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // badgerのログは出力しない

	badgerDB, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{badgerDB: badgerDB}, nil
}

// Close データベースを閉じる
func (d *DB) Close() error {
	return d.badgerDB.Close()
}

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}

// CreateUser はユーザーを登録します。同名のユーザーがいれば ErrUserExists を返します。
func (d *DB) CreateUser(user models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return d.badgerDB.Update(func(txn *badger.Txn) error {
		key := userKey(user.Username)
		if _, err := txn.Get(key); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// GetUser はユーザーを取得します。
func (d *DB) GetUser(username string) (*models.User, error) {
	var user models.User
	err := d.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser はユーザーを削除します。
func (d *DB) DeleteUser(username string) error {
	return d.badgerDB.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(username)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		return txn.Delete(userKey(username))
	})
}

// ListUsernames は登録済みのユーザー名をキー順に返します。
func (d *DB) ListUsernames() ([]string, error) {
	var names []string
	err := d.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), userPrefix))
		}
		return nil
	})
	return names, err
}
