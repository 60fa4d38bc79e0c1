package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/store"
)

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

// StaffInput is the validated input for creating a staff account.
type StaffInput struct {
	Username string
	Password string
	Role     string
	Branch   string
}

// StaffPatch carries the fields an edit changes; nil fields are kept.
type StaffPatch struct {
	Username *string
	Password *string
	Role     *string
	Branch   *string
}

// staffDocument is the stored form of a staff account. The hash never
// leaves this package.
type staffDocument struct {
	model.Staff
	PasswordHash string `json:"password_hash"`
}

// StaffService manages staff accounts and verifies credentials.
type StaffService struct {
	store store.Store
	blobs BlobStore
}

// NewStaffService creates a new StaffService.
func NewStaffService(s store.Store, blobs BlobStore) *StaffService {
	return &StaffService{store: s, blobs: blobs}
}

func (s *StaffService) ListStaff(ctx context.Context) ([]model.Staff, error) {
	docs, err := s.store.GetAll(ctx, enum.CollectionStaff)
	if err != nil {
		return nil, storeErr(err, "list staff")
	}
	staff, err := store.DecodeAll[model.Staff](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(staff, func(i, j int) bool { return staff[i].Username < staff[j].Username })
	return staff, nil
}

func (s *StaffService) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	return doc.Staff, nil
}

// CreateStaff saves a new account with a hashed password.
func (s *StaffService) CreateStaff(ctx context.Context, in StaffInput) (model.Staff, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return model.Staff{}, validationf("username and password are required")
	}
	if !validRole(in.Role) {
		return model.Staff{}, validationf("invalid role %q", in.Role)
	}
	if _, found, err := s.findByUsername(ctx, username); err != nil {
		return model.Staff{}, err
	} else if found {
		return model.Staff{}, fmt.Errorf("%w: username %q", ErrConflict, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return model.Staff{}, fmt.Errorf("hash password: %w", err)
	}

	doc := staffDocument{
		Staff: model.Staff{
			Username:  username,
			Role:      in.Role,
			Branch:    branchFor(in.Role, in.Branch),
			CreatedAt: now(),
		},
		PasswordHash: string(hash),
	}
	id, err := s.store.Create(ctx, enum.CollectionStaff, doc)
	if err != nil {
		return model.Staff{}, storeErr(err, "create staff")
	}
	doc.ID = id
	return doc.Staff, nil
}

// UpdateStaff edits an account. A non-nil Password replaces the hash.
func (s *StaffService) UpdateStaff(ctx context.Context, id string, patch StaffPatch) (model.Staff, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	staff := doc.Staff

	changes := map[string]any{}
	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if username == "" {
			return model.Staff{}, validationf("username is required")
		}
		if username != staff.Username {
			other, found, err := s.findByUsername(ctx, username)
			if err != nil {
				return model.Staff{}, err
			}
			if found && other.ID != id {
				return model.Staff{}, fmt.Errorf("%w: username %q", ErrConflict, username)
			}
		}
		staff.Username = username
		changes["username"] = username
	}
	if patch.Role != nil {
		if !validRole(*patch.Role) {
			return model.Staff{}, validationf("invalid role %q", *patch.Role)
		}
		staff.Role = *patch.Role
		changes["role"] = staff.Role
	}
	if patch.Branch != nil {
		staff.Branch = strings.TrimSpace(*patch.Branch)
	}
	if patch.Branch != nil || patch.Role != nil {
		staff.Branch = branchFor(staff.Role, staff.Branch)
		changes["branch"] = staff.Branch
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return model.Staff{}, validationf("password cannot be empty")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcryptCost)
		if err != nil {
			return model.Staff{}, fmt.Errorf("hash password: %w", err)
		}
		changes["password_hash"] = string(hash)
	}
	if len(changes) == 0 {
		return staff, nil
	}

	if err := s.store.Update(ctx, enum.CollectionStaff, id, changes); err != nil {
		return model.Staff{}, storeErr(err, "update staff "+id)
	}
	return staff, nil
}

func (s *StaffService) DeleteStaff(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, enum.CollectionStaff, id); err != nil {
		return storeErr(err, "staff "+id)
	}
	return nil
}

// SetStaffAvatar uploads an avatar image and records its URL.
func (s *StaffService) SetStaffAvatar(ctx context.Context, id string, data []byte, contentType string) (model.Staff, error) {
	staff, err := s.GetStaff(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	url, err := upload(ctx, s.blobs, "staff/"+id, data, contentType)
	if err != nil {
		return model.Staff{}, err
	}
	if err := s.store.Update(ctx, enum.CollectionStaff, id, map[string]any{"avatar_ref": url}); err != nil {
		return model.Staff{}, storeErr(err, "update staff "+id)
	}
	staff.AvatarRef = url
	return staff, nil
}

// Verify checks a username and password. Unknown users and wrong passwords
// both fail with ErrAuth.
func (s *StaffService) Verify(ctx context.Context, username, password string) (model.Staff, error) {
	doc, found, err := s.findByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return model.Staff{}, err
	}
	if !found {
		return model.Staff{}, ErrAuth
	}
	if err := bcrypt.CompareHashAndPassword([]byte(doc.PasswordHash), []byte(password)); err != nil {
		return model.Staff{}, ErrAuth
	}
	return doc.Staff, nil
}

// --- Helpers ---

func (s *StaffService) get(ctx context.Context, id string) (staffDocument, error) {
	var doc staffDocument
	if err := s.store.Get(ctx, enum.CollectionStaff, id, &doc); err != nil {
		return staffDocument{}, storeErr(err, "staff "+id)
	}
	return doc, nil
}

func (s *StaffService) findByUsername(ctx context.Context, username string) (staffDocument, bool, error) {
	docs, err := s.store.Query(ctx, enum.CollectionStaff, store.Where("username", store.OpEq, username))
	if err != nil {
		return staffDocument{}, false, storeErr(err, "find staff")
	}
	if len(docs) == 0 {
		return staffDocument{}, false, nil
	}
	doc, err := store.Decode[staffDocument](docs[0])
	if err != nil {
		return staffDocument{}, false, err
	}
	return doc, true, nil
}

func validRole(role string) bool {
	switch role {
	case enum.RoleAdmin, enum.RoleSeller, enum.RoleWaiter:
		return true
	}
	return false
}

// branchFor clears the branch for admins, who see every branch.
func branchFor(role, branch string) string {
	if role == enum.RoleAdmin {
		return ""
	}
	return strings.TrimSpace(branch)
}
