package db

import "context"

// Reference-entity upserts. The unique constraints on (code, code_type) and
// on name are the source of truth for deduplication; the DO UPDATE form
// makes a lost insert race degrade into a lookup of the winner's row, so
// concurrent callers always get the same id back.

const upsertCode = `
INSERT INTO codes (code, code_type) VALUES ($1, $2)
ON CONFLICT (code, code_type) DO UPDATE SET code = EXCLUDED.code
RETURNING id`

func (q *Queries) UpsertCode(ctx context.Context, code, codeType string) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, upsertCode, code, codeType).Scan(&id)
	return id, err
}

const upsertPayer = `
INSERT INTO payers (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

func (q *Queries) UpsertPayer(ctx context.Context, name string) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, upsertPayer, name).Scan(&id)
	return id, err
}

const upsertPlan = `
INSERT INTO plans (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

func (q *Queries) UpsertPlan(ctx context.Context, name string) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, upsertPlan, name).Scan(&id)
	return id, err
}

type Code struct {
	ID       int32
	Code     string
	CodeType string
}

const listCodesByType = `
SELECT id, code, code_type FROM codes WHERE code_type = $1 ORDER BY code`

func (q *Queries) ListCodesByType(ctx context.Context, codeType string) ([]Code, error) {
	rows, err := q.db.Query(ctx, listCodesByType, codeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []Code
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.ID, &c.Code, &c.CodeType); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}
