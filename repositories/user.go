//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"time"

	"panel-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	userPrefix   = "user:"
	userIDPrefix = "user-id:"
)

type IUserRepository interface {
	CreateUser(email, displayName, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is an account of the directory.
type User struct {
	ID           string    `cbor:"id"`
	Email        string    `cbor:"email"`
	DisplayName  string    `cbor:"display_name"`
	PasswordHash string    `cbor:"password_hash"`
	Roles        []string  `cbor:"roles"`
	CreatedAt    time.Time `cbor:"created_at"`
}

// CreateUser persists the user under its email, plus an id index pointing
// back to that email. It returns the newly generated user ID.
func (u UserRepository) CreateUser(email, displayName, hashedPassword string) (string, error) {
	newID := uuid.New().String()
	data, err := marshal(User{
		ID:           newID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte(userPrefix + email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(userIDPrefix+newID), []byte(email))
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// GetUserByEmail returns badger.ErrKeyNotFound for an unknown email.
func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshal(val, &user)
		})
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u UserRepository) GetUserByID(id string) (User, error) {
	var email string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userIDPrefix + id))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		email = string(value)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u.GetUserByEmail(email)
}
