package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	byID  map[uuid.UUID]*Account
	found *Account
	err   error
	last  AccountQuery
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if acc, ok := s.byID[id]; ok {
		return acc, nil
	}
	return nil, ErrAccountNotFound
}

func (s *stubStore) FindOne(_ context.Context, q AccountQuery) (*Account, error) {
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	if s.found == nil {
		return nil, ErrAccountNotFound
	}
	return s.found, nil
}

func (s *stubStore) Create(context.Context, *Account) (*Account, error) { return nil, nil }

func (s *stubStore) Update(context.Context, uuid.UUID, AccountPatch) (*Account, error) {
	return nil, nil
}

func TestPasswordRules(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
	}{
		{"engine1843", true},
		{"пароль2024", true},
		{"short1", false},
		{"nodigitshere", false},
		{"1234567890", false},
		{strings.Repeat("a1", 33), false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := validation.Validate(tt.password, requiredPassword()...)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRuneLength(t *testing.T) {
	rule := runeLength(2, 3)
	assert.NoError(t, validation.Validate("", rule))
	assert.NoError(t, validation.Validate("Жёж", rule))
	assert.Error(t, validation.Validate("Ж", rule))
	assert.Error(t, validation.Validate("abcd", rule))
}

func TestPhoneNumber(t *testing.T) {
	rule := phoneNumber()
	assert.NoError(t, validation.Validate("+14155552671", rule))
	assert.NoError(t, validation.Validate("+442071838750", rule))
	assert.Error(t, validation.Validate("4155552671", rule), "national format has no region")
	assert.Error(t, validation.Validate("+1415", rule))
}

func TestAvatarImage(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	jpeg := append([]byte{0xFF, 0xD8, 0xFF}, make([]byte, 16)...)

	rule := avatarImage(64)
	assert.NoError(t, validation.Validate(png, rule))
	assert.NoError(t, validation.Validate(jpeg, rule))
	assert.Error(t, validation.Validate([]byte("GIF89a..........."), rule))
	assert.Error(t, validation.Validate(append(png, make([]byte, 64)...), rule))
}

func TestRequiredID(t *testing.T) {
	assert.Error(t, validation.Validate(uuid.Nil, requiredID()))
	assert.NoError(t, validation.Validate(uuid.New(), requiredID()))
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("free", func(t *testing.T) {
		store := &stubStore{}
		assert.NoError(t, validation.Validate("ada@example.com", emailNotRegistered(ctx, store)))
		assert.Equal(t, "ada@example.com", store.last.Email)
	})

	t.Run("taken", func(t *testing.T) {
		store := &stubStore{found: &Account{}}
		err := validation.Validate("ada@example.com", emailNotRegistered(ctx, store))
		require.Error(t, err)
		assert.Equal(t, "email is already registered", err.Error())
	})

	t.Run("excludes self", func(t *testing.T) {
		store := &stubStore{}
		id := uuid.New()
		assert.NoError(t, validation.Validate("ada@example.com", emailAvailableFor(ctx, store, id)))
		assert.Equal(t, id, store.last.ExcludeID)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		boom := errors.New("boom")
		store := &stubStore{err: boom}
		err := validation.Validate("+14155552671", phoneNotRegistered(ctx, store))

		var internal validation.InternalError
		require.ErrorAs(t, err, &internal)
		assert.Equal(t, boom, internal.InternalError())
	})
}

func TestPasswordOf(t *testing.T) {
	ctx := context.Background()
	hasher := NewBcryptHasher(4)
	hash, err := hasher.HashPassword("engine1843")
	require.NoError(t, err)

	id := uuid.New()
	store := &stubStore{byID: map[uuid.UUID]*Account{id: {ID: id, PasswordHash: hash}}}

	assert.NoError(t, validation.Validate("engine1843", passwordOf(ctx, store, hasher, id)))

	err = validation.Validate("babbage1822", passwordOf(ctx, store, hasher, id))
	require.Error(t, err)
	assert.Equal(t, "wrong password", err.Error())

	err = validation.Validate("engine1843", passwordOf(ctx, store, hasher, uuid.New()))
	require.Error(t, err)
	assert.Equal(t, "wrong password", err.Error())
}

func TestExistingAccountAndPhoneAwaitingConfirmation(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	store := &stubStore{byID: map[uuid.UUID]*Account{
		id: {ID: id, MobilePhone: "+14155552671"},
	}}

	var acc *Account
	err := validation.Validate(id, existingAccount(ctx, store, &acc), phoneAwaitingConfirmation(&acc))
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, id, acc.ID)

	acc.MobilePhoneConfirmed = true
	err = validation.Validate(id, phoneAwaitingConfirmation(&acc))
	require.Error(t, err)

	acc = nil
	err = validation.Validate(uuid.New(), existingAccount(ctx, store, &acc))
	require.Error(t, err)
	assert.Nil(t, acc)
}
