package resource

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/appkit/internal/metrics"
	"github.com/hitoshi/appkit/internal/model"
	"github.com/hitoshi/appkit/internal/repository"
	"github.com/hitoshi/appkit/internal/security"
)

// --- モック定義 ---

type mockResourceRepo struct {
	createFn   func(ctx context.Context, resource *model.ResourceA) error
	listFn     func(ctx context.Context) ([]*model.ResourceA, error)
	findByIDFn func(ctx context.Context, id string) (*model.ResourceA, error)
	updateFn   func(ctx context.Context, resource *model.ResourceA) error
	deleteFn   func(ctx context.Context, id string) error

	writes int
}

func (m *mockResourceRepo) Create(ctx context.Context, resource *model.ResourceA) error {
	m.writes++
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *mockResourceRepo) List(ctx context.Context) ([]*model.ResourceA, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.ResourceA{}, nil
}

func (m *mockResourceRepo) FindByID(ctx context.Context, id string) (*model.ResourceA, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockResourceRepo) Update(ctx context.Context, resource *model.ResourceA) error {
	m.writes++
	if m.updateFn != nil {
		return m.updateFn(ctx, resource)
	}
	return nil
}

func (m *mockResourceRepo) Delete(ctx context.Context, id string) error {
	m.writes++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id}, nil
}

func (m *mockUserRepo) FindByFacebookID(context.Context, string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) ExistsByEmail(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *mockUserRepo) Create(context.Context, *model.User) error { return nil }

func (m *mockUserRepo) UpdateFacebookToken(context.Context, string, string) error { return nil }

func (m *mockUserRepo) MarkConfirmed(context.Context, string, time.Time) error { return nil }

var _ repository.ResourceARepository = (*mockResourceRepo)(nil)
var _ repository.UserRepository = (*mockUserRepo)(nil)

func newTestService(resources *mockResourceRepo, users *mockUserRepo) *Service {
	return NewService(resources, users, security.NewTextSanitizer(), metrics.NewCollector(prometheus.NewRegistry()))
}

func ownedResource(owner string) *model.ResourceA {
	return &model.ResourceA{ID: "res-1", Name: "original", OwnerID: owner}
}

func attrs(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("invalid test body %s: %v", body, err)
	}
	return m
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- Create ---

func TestCreate_PersistsSanitizedNameWithCallerAsOwner(t *testing.T) {
	var saved *model.ResourceA
	resources := &mockResourceRepo{createFn: func(_ context.Context, r *model.ResourceA) error {
		saved = r
		return nil
	}}
	svc := newTestService(resources, &mockUserRepo{})

	got, err := svc.Create(context.Background(), "user-1", attrs(t, `{"name":"  <script>alert(1)</script><b>Widget</b> "}`))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if saved == nil || saved != got {
		t.Fatal("expected the returned resource to be persisted")
	}
	if got.Name != "Widget" {
		t.Errorf("Name = %q, want %q", got.Name, "Widget")
	}
	if got.OwnerID != "user-1" {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, "user-1")
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Errorf("expected id and timestamps to be set: %+v", got)
	}
}

func TestCreate_UnknownOwner_ReturnsUserNotFound(t *testing.T) {
	resources := &mockResourceRepo{}
	users := &mockUserRepo{findByIDFn: func(context.Context, string) (*model.User, error) {
		return nil, nil
	}}
	svc := newTestService(resources, users)

	_, err := svc.Create(context.Background(), "ghost", attrs(t, `{"name":"Widget"}`))
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
	if resources.writes != 0 {
		t.Error("no resource should be written for an unknown owner")
	}
}

func TestCreate_EmptyName_ReturnsMissingParameters(t *testing.T) {
	for _, body := range []string{`{}`, `{"name":null}`, `{"name":""}`, `{"name":"   "}`, `{"name":"<br/>"}`} {
		resources := &mockResourceRepo{}
		svc := newTestService(resources, &mockUserRepo{})

		_, err := svc.Create(context.Background(), "user-1", attrs(t, body))
		assertAPIErrorCode(t, err, model.ErrCodeMissingParameters)
		if resources.writes != 0 {
			t.Errorf("body %s: expected no writes", body)
		}
	}
}

func TestCreate_ExtraKeys_ReturnsInvalidRequestKeys(t *testing.T) {
	resources := &mockResourceRepo{}
	svc := newTestService(resources, &mockUserRepo{})

	_, err := svc.Create(context.Background(), "user-1", attrs(t, `{"name":"Widget","owner_id":"user-2"}`))
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequestKeys)
	if resources.writes != 0 {
		t.Error("no resource should be written with extra keys")
	}
}

// --- List / Get ---

func TestList_ReturnsRepositoryOrder(t *testing.T) {
	want := []*model.ResourceA{{ID: "a"}, {ID: "b"}}
	svc := newTestService(&mockResourceRepo{listFn: func(context.Context) ([]*model.ResourceA, error) {
		return want, nil
	}}, &mockUserRepo{})

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("unexpected list: %+v", got)
	}
}

func TestGet_Missing_ReturnsResourceNotFound(t *testing.T) {
	svc := newTestService(&mockResourceRepo{}, &mockUserRepo{})

	_, err := svc.Get(context.Background(), "missing")
	assertAPIErrorCode(t, err, model.ErrCodeResourceNotFound)

	var apiErr *model.APIError
	errors.As(err, &apiErr)
	if apiErr.Message == "" {
		t.Error("expected message naming the resource type")
	}
}

// --- Update ---

func TestUpdate_Owner_AppliesName(t *testing.T) {
	var saved *model.ResourceA
	resources := &mockResourceRepo{
		findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
			return ownedResource("user-1"), nil
		},
		updateFn: func(_ context.Context, r *model.ResourceA) error {
			saved = r
			return nil
		},
	}
	svc := newTestService(resources, &mockUserRepo{})

	got, err := svc.Update(context.Background(), "user-1", "res-1", attrs(t, `{"name":"<i>Renamed</i>"}`))
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got.Name != "Renamed" || saved == nil || saved.Name != "Renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "Renamed")
	}
	if got.OwnerID != "user-1" {
		t.Error("owner must not change on update")
	}
}

func TestUpdate_NonOwner_ReturnsUnauthorizedWithoutWrites(t *testing.T) {
	resources := &mockResourceRepo{findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
		return ownedResource("user-1"), nil
	}}
	svc := newTestService(resources, &mockUserRepo{})

	_, err := svc.Update(context.Background(), "user-2", "res-1", attrs(t, `{"name":"hijack","owner_id":"user-2"}`))
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
	if resources.writes != 0 {
		t.Errorf("writes = %d, want 0", resources.writes)
	}
}

func TestUpdate_Missing_ReturnsResourceNotFound(t *testing.T) {
	svc := newTestService(&mockResourceRepo{}, &mockUserRepo{})

	_, err := svc.Update(context.Background(), "user-1", "missing", attrs(t, `{"name":"x"}`))
	assertAPIErrorCode(t, err, model.ErrCodeResourceNotFound)
}

func TestUpdate_EmptyUpdate_ReturnsMissingParameters(t *testing.T) {
	resources := &mockResourceRepo{findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
		return ownedResource("user-1"), nil
	}}
	svc := newTestService(resources, &mockUserRepo{})

	for _, body := range []string{`{}`, `{"name":null}`} {
		_, err := svc.Update(context.Background(), "user-1", "res-1", attrs(t, body))
		assertAPIErrorCode(t, err, model.ErrCodeMissingParameters)
	}
	if resources.writes != 0 {
		t.Errorf("writes = %d, want 0", resources.writes)
	}
}

func TestUpdate_ExtraKeys_ReturnsExactlyTheExtraKeysWithoutWrites(t *testing.T) {
	resources := &mockResourceRepo{findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
		return ownedResource("user-1"), nil
	}}
	svc := newTestService(resources, &mockUserRepo{})

	_, err := svc.Update(context.Background(), "user-1", "res-1", attrs(t, `{"name":"ok","owner_id":"user-2","created_at":"x"}`))
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequestKeys)

	var apiErr *model.APIError
	errors.As(err, &apiErr)
	if len(apiErr.Keys) != 2 || apiErr.Keys[0] != "created_at" || apiErr.Keys[1] != "owner_id" {
		t.Errorf("keys = %v, want [created_at owner_id]", apiErr.Keys)
	}
	if resources.writes != 0 {
		t.Errorf("writes = %d, want 0", resources.writes)
	}
}

func TestUpdate_MissingResourceTakesPrecedenceOverBodyValidation(t *testing.T) {
	svc := newTestService(&mockResourceRepo{}, &mockUserRepo{})

	_, err := svc.Update(context.Background(), "user-1", "missing", attrs(t, `{"bogus":1}`))
	assertAPIErrorCode(t, err, model.ErrCodeResourceNotFound)
}

// --- Delete ---

func TestDelete_Owner_Deletes(t *testing.T) {
	var deleted string
	resources := &mockResourceRepo{
		findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
			return ownedResource("user-1"), nil
		},
		deleteFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newTestService(resources, &mockUserRepo{})

	if err := svc.Delete(context.Background(), "user-1", "res-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if deleted != "res-1" {
		t.Errorf("deleted = %q, want res-1", deleted)
	}
}

func TestDelete_NonOwner_ReturnsUnauthorizedWithoutWrites(t *testing.T) {
	resources := &mockResourceRepo{findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
		return ownedResource("user-1"), nil
	}}
	svc := newTestService(resources, &mockUserRepo{})

	err := svc.Delete(context.Background(), "user-2", "res-1")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
	if resources.writes != 0 {
		t.Errorf("writes = %d, want 0", resources.writes)
	}
}

func TestDelete_Missing_ReturnsResourceNotFound(t *testing.T) {
	svc := newTestService(&mockResourceRepo{}, &mockUserRepo{})

	err := svc.Delete(context.Background(), "user-1", "missing")
	assertAPIErrorCode(t, err, model.ErrCodeResourceNotFound)
}

func TestDelete_RepositoryError_IsWrapped(t *testing.T) {
	dbErr := errors.New("db down")
	resources := &mockResourceRepo{
		findByIDFn: func(context.Context, string) (*model.ResourceA, error) {
			return ownedResource("user-1"), nil
		},
		deleteFn: func(context.Context, string) error { return dbErr },
	}
	svc := newTestService(resources, &mockUserRepo{})

	err := svc.Delete(context.Background(), "user-1", "res-1")
	if !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped db error, got %v", err)
	}
}
