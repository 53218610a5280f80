package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

const selectColumns = `id::text, name, state, last_updated`

func (db *Database) ListAppliances(ctx context.Context) (model.Appliances, error) {
	const query = `
	SELECT ` + selectColumns + `
	FROM appliance
	ORDER BY seq;
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	appliances, err := scanAppliances(rows)
	if err != nil {
		return nil, unavailable(err)
	}
	return appliances, nil
}

func (db *Database) GetAppliance(ctx context.Context, id string) (model.Appliance, error) {
	uid, err := parseID(id)
	if err != nil {
		return model.Appliance{}, err
	}

	const query = `
	SELECT ` + selectColumns + `
	FROM appliance
	WHERE id = $1::uuid;
	`
	appliance, err := scanAppliance(db.pool.QueryRow(ctx, query, uid.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appliance{}, ErrNotFound
		}
		return model.Appliance{}, unavailable(err)
	}
	return appliance, nil
}

func scanAppliance(row pgx.Row) (model.Appliance, error) {
	var appliance model.Appliance
	if err := row.Scan(&appliance.ID, &appliance.Name, &appliance.State, &appliance.LastUpdated); err != nil {
		return model.Appliance{}, err
	}
	return appliance, nil
}

func scanAppliances(rows pgx.Rows) (model.Appliances, error) {
	appliances := model.Appliances{}
	for rows.Next() {
		appliance, err := scanAppliance(rows)
		if err != nil {
			return nil, err
		}
		appliances = append(appliances, appliance)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return appliances, nil
}
