package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

// UpdateAppliance sets the patched fields on a single record and returns the
// stored result. last_updated only moves when a value actually changes.
func (db *Database) UpdateAppliance(ctx context.Context, id string, patch model.Patch) (model.Appliance, error) {
	if err := patch.Validate(); err != nil {
		return model.Appliance{}, err
	}
	uid, err := parseID(id)
	if err != nil {
		return model.Appliance{}, err
	}

	const updateSQL = `
	UPDATE appliance SET
		name = COALESCE($2, name),
		state = COALESCE($3, state),
		last_updated = CASE
			WHEN COALESCE($2, name) <> name OR COALESCE($3, state) <> state THEN now()
			ELSE last_updated
		END
	WHERE id = $1::uuid
	RETURNING ` + selectColumns + `;
	`
	appliance, err := scanAppliance(db.pool.QueryRow(ctx, updateSQL, uid.String(), nullable(patch.Name), nullable(patch.State)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appliance{}, ErrNotFound
		}
		return model.Appliance{}, unavailable(err)
	}
	return appliance, nil
}

// Seed creates an appliance in the given state for every known name that has
// no record yet. Existing records are left untouched.
func (db *Database) Seed(ctx context.Context, state model.State) (model.Appliances, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
	INSERT INTO appliance (name, state)
	SELECT $1::text, $2::text
	WHERE NOT EXISTS (SELECT 1 FROM appliance WHERE name = $1::text)
	RETURNING ` + selectColumns + `;
	`
	created := model.Appliances{}
	for _, name := range model.Names {
		appliance, err := scanAppliance(tx.QueryRow(ctx, insertSQL, string(name), string(state)))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, unavailable(err)
		}
		created = append(created, appliance)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err)
	}
	return created, nil
}

func nullable[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
