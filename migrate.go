package account

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Migrate creates the account tables and indexes when missing.
func Migrate(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*Account)(nil),
		(*OtpRecord)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}

	_, err := db.NewCreateIndex().
		Model((*Account)(nil)).
		Index("accounts_mobile_phone_idx").
		Column("mobile_phone").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create index")
	}

	return nil
}
