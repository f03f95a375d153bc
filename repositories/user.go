//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"bourracho/domain"
	"bourracho/errors"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	userPrefix     = "user:"
	usernamePrefix = "username:"
)

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (domain.User, error)
	GetUserByUsername(username string) (domain.User, error)
	GetUserByID(id string) (domain.User, error)
	GetUsersByIDs(ids []string) ([]domain.User, error)
	ListUsers() ([]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// CreateUser persists a new user under a fresh id.
// The username index entry and the user document are written in one transaction.
func (u UserRepository) CreateUser(username, hashedPassword string) (domain.User, error) {
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := marshal(user)
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		indexKey := []byte(usernamePrefix + username)
		if _, err := txn.Get(indexKey); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(indexKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(userPrefix+user.ID), data)
	})
	if err != nil {
		return domain.User{}, storageError("create user", err)
	}
	return user, nil
}

func (u UserRepository) GetUserByUsername(username string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernamePrefix + username))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	if err != nil {
		return domain.User{}, storageError("user "+username, err)
	}
	return user, nil
}

func (u UserRepository) GetUserByID(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) (err error) {
		user, err = getUser(txn, id)
		return err
	})
	if err != nil {
		return domain.User{}, storageError("user "+id, err)
	}
	return user, nil
}

// GetUsersByIDs returns the users found, in the order of ids. Unknown ids are skipped.
func (u UserRepository) GetUsersByIDs(ids []string) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			user, err := getUser(txn, id)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("users", err)
	}
	return users, nil
}

func (u UserRepository) ListUsers() ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(userPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user domain.User
			if err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &user)
			}); err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("list users", err)
	}
	return users, nil
}

func getUser(txn *badger.Txn, id string) (domain.User, error) {
	var user domain.User
	item, err := txn.Get([]byte(userPrefix + id))
	if err != nil {
		return user, err
	}
	err = item.Value(func(val []byte) error {
		return unmarshal(val, &user)
	})
	return user, err
}

// storageError keeps domain errors as they are and classifies badger ones.
func storageError(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.KindOf(err) != errors.KindUnknown:
		return err
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%w: %s", errors.ErrNotFound, what)
	default:
		return errors.Unavailable(what, err)
	}
}
