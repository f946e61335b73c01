package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/appkit/internal/model"
)

// SQLResourceARepo はsqlxを使用したResourceAリポジトリ。
type SQLResourceARepo struct {
	db *sqlx.DB
}

// NewSQLResourceARepo はSQLResourceARepoを生成する。
func NewSQLResourceARepo(db *sqlx.DB) *SQLResourceARepo {
	return &SQLResourceARepo{db: db}
}

// Create はリソースを作成する。
func (r *SQLResourceARepo) Create(ctx context.Context, resource *model.ResourceA) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO resource_a (id, name, owner_id, created_at, updated_at)
		 VALUES (:id, :name, :owner_id, :created_at, :updated_at)`,
		resource,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// List は全リソースを作成日時の昇順で返す。
func (r *SQLResourceARepo) List(ctx context.Context) ([]*model.ResourceA, error) {
	resources := []*model.ResourceA{}
	err := r.db.SelectContext(ctx, &resources,
		`SELECT id, name, owner_id, created_at, updated_at FROM resource_a ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// FindByID は指定IDのリソースを取得する。見つからない場合はnilを返す。
func (r *SQLResourceARepo) FindByID(ctx context.Context, id string) (*model.ResourceA, error) {
	resource := &model.ResourceA{}
	err := r.db.GetContext(ctx, resource,
		r.db.Rebind(`SELECT id, name, owner_id, created_at, updated_at FROM resource_a WHERE id = ?`),
		id,
	)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resource by ID: %w", err)
	}
	return resource, nil
}

// Update はリソースの変更可能な属性を更新する。
// 所有者は変更しない。
func (r *SQLResourceARepo) Update(ctx context.Context, resource *model.ResourceA) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE resource_a SET name = ?, updated_at = ? WHERE id = ?`),
		resource.Name, resource.UpdatedAt, resource.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	return expectOneRow(result, "resource", resource.ID)
}

// Delete は指定IDのリソースを削除する。
func (r *SQLResourceARepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM resource_a WHERE id = ?`),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return expectOneRow(result, "resource", id)
}

// compile-time interface check
var _ ResourceARepository = (*SQLResourceARepo)(nil)
