package account

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore implements Store on bun. Id lookups and inserts go through
// go-repository-bun, predicate lookups and patches through bun queries.
type BunStore struct {
	db   *bun.DB
	repo repository.Repository[*Account]
	now  func() time.Time
}

var _ Store = (*BunStore)(nil)

type BunStoreOption func(*BunStore)

func WithStoreClock(now func() time.Time) BunStoreOption {
	return func(s *BunStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewAccountsRepository(db *bun.DB) repository.Repository[*Account] {
	handlers := repository.ModelHandlers[*Account]{
		NewRecord: func() *Account {
			return &Account{}
		},
		GetID: func(record *Account) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Account, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewBunStore(db *bun.DB, opts ...BunStoreOption) *BunStore {
	s := &BunStore{
		db:   db,
		repo: NewAccountsRepository(db),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *BunStore) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	record, err := s.repo.GetByID(ctx, id.String())
	if err != nil {
		if isNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to get account by id")
	}
	return record, nil
}

func (s *BunStore) FindOne(ctx context.Context, query AccountQuery) (*Account, error) {
	if query.IsEmpty() {
		return nil, goerrors.New("account query has no predicate", goerrors.CategoryBadInput)
	}

	record := &Account{}
	q := s.db.NewSelect().Model(record)
	for _, p := range query.predicates() {
		q = q.Where(p.expr, p.arg)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find account")
	}
	return record, nil
}

func (s *BunStore) Create(ctx context.Context, record *Account) (*Account, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Roles == "" {
		record.Roles = FormatRoles(nil)
	}
	now := s.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	created, err := s.repo.CreateTx(ctx, s.db, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}
	return created, nil
}

// Update writes only the patched columns in one statement and then
// reads the row back.
func (s *BunStore) Update(ctx context.Context, id uuid.UUID, patch AccountPatch) (*Account, error) {
	if patch.IsEmpty() {
		return s.GetByID(ctx, id)
	}

	q := s.db.NewUpdate().
		Model((*Account)(nil)).
		Where("?TableAlias.id = ?", id)

	for _, p := range patch.Where.predicates() {
		q = q.Where(p.expr, p.arg)
	}

	set := func(column string, value any) {
		q = q.Set("? = ?", bun.Ident(column), value)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.MobilePhone != nil {
		set("mobile_phone", *patch.MobilePhone)
	}
	if patch.Avatar != nil {
		set("avatar", *patch.Avatar)
	}
	if patch.Active != nil {
		set("active", *patch.Active)
	}
	if patch.EmailConfirmed != nil {
		set("email_confirmed", *patch.EmailConfirmed)
	}
	if patch.MobilePhoneConfirmed != nil {
		set("mobile_phone_confirmed", *patch.MobilePhoneConfirmed)
	}
	if patch.UpdatedBy != nil {
		set("updated_by", *patch.UpdatedBy)
	}
	set("updated_at", s.now().UTC())

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAccountNotFound
	}

	return s.GetByID(ctx, id)
}

type predicate struct {
	expr string
	arg  any
}

func (q AccountQuery) predicates() []predicate {
	var out []predicate
	if q.ID != uuid.Nil {
		out = append(out, predicate{"?TableAlias.id = ?", q.ID})
	}
	if q.Email != "" {
		out = append(out, predicate{"?TableAlias.email = ?", q.Email})
	}
	if q.PasswordHash != "" {
		out = append(out, predicate{"?TableAlias.password_hash = ?", q.PasswordHash})
	}
	if q.MobilePhone != "" {
		out = append(out, predicate{"?TableAlias.mobile_phone = ?", q.MobilePhone})
	}
	if q.EmailConfirmed != nil {
		out = append(out, predicate{"?TableAlias.email_confirmed = ?", *q.EmailConfirmed})
	}
	if q.ExcludeID != uuid.Nil {
		out = append(out, predicate{"?TableAlias.id != ?", q.ExcludeID})
	}
	return out
}

func isNoRows(err error) bool {
	return repository.IsRecordNotFound(err) || goerrors.Is(err, sql.ErrNoRows)
}
