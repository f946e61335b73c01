// Package resource はResourceAの作成・参照・更新・削除のドメインロジックを提供する。
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/appkit/internal/metrics"
	"github.com/hitoshi/appkit/internal/model"
	"github.com/hitoshi/appkit/internal/repository"
	"github.com/hitoshi/appkit/internal/security"
)

// 変更操作（メトリクスのラベル）
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Service はResourceAのサービス層。
// 変更・削除は所有者のみに許可し、名前はマークアップを除去してから保存する。
type Service struct {
	resourceRepo repository.ResourceARepository
	userRepo     repository.UserRepository
	sanitizer    security.TextSanitizer
	metrics      metrics.MetricsCollector
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	resourceRepo repository.ResourceARepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		resourceRepo: resourceRepo,
		userRepo:     userRepo,
		sanitizer:    sanitizer,
		metrics:      collector,
		now:          time.Now,
	}
}

// Create は呼び出し元ユーザーを所有者としてリソースを作成する。
// attrsはリクエストボディの属性マップで、nameが必須。
func (s *Service) Create(ctx context.Context, ownerID string, attrs map[string]json.RawMessage) (*model.ResourceA, error) {
	owner, err := s.userRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError()
	}

	input, err := model.ParseResourceAUpdate(attrs)
	if err != nil {
		return nil, err
	}
	if input.Name == nil {
		return nil, model.NewMissingParametersError()
	}
	clean := s.sanitizer.Sanitize(*input.Name)
	if clean == "" {
		return nil, model.NewMissingParametersError()
	}

	now := s.now().UTC()
	resource := &model.ResourceA{
		ID:        uuid.New().String(),
		Name:      clean,
		OwnerID:   owner.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.resourceRepo.Create(ctx, resource); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	s.metrics.RecordResourceMutation(OpCreate)
	slog.Info("resource created",
		slog.String("resource_id", resource.ID),
		slog.String("user_id", owner.ID),
	)
	return resource, nil
}

// List は全リソースを作成日時順に返す。
func (s *Service) List(ctx context.Context) ([]*model.ResourceA, error) {
	resources, err := s.resourceRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// Get は指定IDのリソースを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.ResourceA, error) {
	return s.find(ctx, id)
}

// Update は所有者による変更可能な属性の更新を行う。
// 存在確認、所有者確認、属性の検証の順に行い、いずれかで失敗した場合は書き込みを行わない。
func (s *Service) Update(ctx context.Context, callerID, id string, attrs map[string]json.RawMessage) (*model.ResourceA, error) {
	resource, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !resource.OwnedBy(callerID) {
		return nil, model.NewNotOwnerError()
	}

	update, err := model.ParseResourceAUpdate(attrs)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, model.NewMissingParametersError()
	}

	if update.Name != nil {
		clean := s.sanitizer.Sanitize(*update.Name)
		if clean == "" {
			return nil, model.NewMissingParametersError()
		}
		update.Name = &clean
	}

	update.Apply(resource)
	resource.UpdatedAt = s.now().UTC()
	if err := s.resourceRepo.Update(ctx, resource); err != nil {
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}

	s.metrics.RecordResourceMutation(OpUpdate)
	slog.Info("resource updated",
		slog.String("resource_id", resource.ID),
		slog.String("user_id", callerID),
	)
	return resource, nil
}

// Delete は所有者によるリソースの削除を行う。
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	resource, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !resource.OwnedBy(callerID) {
		return model.NewNotOwnerError()
	}

	if err := s.resourceRepo.Delete(ctx, resource.ID); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	s.metrics.RecordResourceMutation(OpDelete)
	slog.Info("resource deleted",
		slog.String("resource_id", resource.ID),
		slog.String("user_id", callerID),
	)
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*model.ResourceA, error) {
	resource, err := s.resourceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	if resource == nil {
		return nil, model.NewResourceNotFoundError(model.ResourceAType)
	}
	return resource, nil
}
