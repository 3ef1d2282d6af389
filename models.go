package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the persisted account row. Rows are soft deleted and every
// read excludes deleted rows.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                   uuid.UUID  `bun:"id,pk,notnull,type:uuid" json:"id"`
	Email                string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash         string     `bun:"password_hash,notnull" json:"-"`
	Active               bool       `bun:"active,notnull,default:false" json:"active"`
	EmailConfirmed       bool       `bun:"email_confirmed,notnull,default:false" json:"email_confirmed"`
	MobilePhoneConfirmed bool       `bun:"mobile_phone_confirmed,notnull,default:false" json:"mobile_phone_confirmed"`
	FirstName            string     `bun:"first_name,notnull" json:"first_name"`
	LastName             string     `bun:"last_name,notnull" json:"last_name"`
	MobilePhone          string     `bun:"mobile_phone,notnull" json:"mobile_phone"`
	Avatar               *string    `bun:"avatar" json:"avatar,omitempty"`
	Roles                string     `bun:"roles,notnull,default:'{}'" json:"-"`
	CreatedBy            *uuid.UUID `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	UpdatedBy            *uuid.UUID `bun:"updated_by,type:uuid" json:"updated_by,omitempty"`
	DeletedBy            *uuid.UUID `bun:"deleted_by,type:uuid" json:"deleted_by,omitempty"`
	CreatedAt            time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt            *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsActive reports whether the account may sign in. An account that
// never confirmed a channel and was never activated is inactive.
func (a *Account) IsActive() bool {
	if a == nil {
		return false
	}
	return a.Active || a.EmailConfirmed || a.MobilePhoneConfirmed
}

// RoleList returns the parsed role set.
func (a *Account) RoleList() []string {
	return ParseRoles(a.Roles)
}

// AccountQuery selects a single account by equality on every non-zero
// field. ExcludeID skips one row, used for "taken by someone else" checks.
type AccountQuery struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	MobilePhone    string
	EmailConfirmed *bool
	ExcludeID      uuid.UUID
}

func (q AccountQuery) IsEmpty() bool {
	return q.ID == uuid.Nil &&
		q.Email == "" &&
		q.PasswordHash == "" &&
		q.MobilePhone == "" &&
		q.EmailConfirmed == nil
}

// AccountPatch lists the columns an update writes. Nil fields are left
// untouched, so concurrent updates of unrelated columns do not clobber
// each other. Where adds extra predicates the row must still satisfy.
type AccountPatch struct {
	Email                *string
	PasswordHash         *string
	FirstName            *string
	LastName             *string
	MobilePhone          *string
	Avatar               *string
	Active               *bool
	EmailConfirmed       *bool
	MobilePhoneConfirmed *bool
	UpdatedBy            *uuid.UUID

	Where AccountQuery
}

// IsEmpty reports whether the patch writes no account column.
func (p AccountPatch) IsEmpty() bool {
	return p.Email == nil &&
		p.PasswordHash == nil &&
		p.FirstName == nil &&
		p.LastName == nil &&
		p.MobilePhone == nil &&
		p.Avatar == nil &&
		p.Active == nil &&
		p.EmailConfirmed == nil &&
		p.MobilePhoneConfirmed == nil
}

// Actor identifies who invokes an operation. The zero value is anonymous.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

func (a Actor) IsAnonymous() bool {
	return a.ID == uuid.Nil
}

// Ref returns the actor id for audit columns, nil when anonymous.
func (a Actor) Ref() *uuid.UUID {
	if a.IsAnonymous() {
		return nil
	}
	id := a.ID
	return &id
}

// RecoveryPayload is embedded in password recovery tokens. PasswordHash
// is the hash at issuance, so any later password change voids the token.
type RecoveryPayload struct {
	Email        string
	PasswordHash string
}

// EmailConfirmationPayload is embedded in email confirmation tokens. The
// token only confirms the address it was minted for.
type EmailConfirmationPayload struct {
	ID    uuid.UUID
	Email string
}

// SessionPayload is the public projection returned by sign in.
type SessionPayload struct {
	ID        uuid.UUID `json:"id"`
	Roles     []string  `json:"roles"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL *string   `json:"avatar_url"`
}

// Profile is the self view of an account.
type Profile struct {
	ID                   uuid.UUID `json:"id"`
	Email                string    `json:"email"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	MobilePhone          string    `json:"mobile_phone"`
	EmailConfirmed       bool      `json:"email_confirmed"`
	MobilePhoneConfirmed bool      `json:"mobile_phone_confirmed"`
	Active               bool      `json:"active"`
	AvatarURL            *string   `json:"avatar_url"`
	Roles                []string  `json:"roles"`
}

type IDResult struct {
	ID uuid.UUID `json:"id"`
}

type OtpResult struct {
	CanRepeatAfterSeconds int `json:"can_repeat_after_seconds"`
}

type AvatarResult struct {
	ID        uuid.UUID `json:"id"`
	AvatarURL string    `json:"avatar_url"`
}

func ref[T any](v T) *T {
	return &v
}
