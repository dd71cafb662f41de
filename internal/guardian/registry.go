// Package guardian is the in-process role registry. It records which holders
// may invoke which privileged vault operations.
package guardian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized      = errors.New("only the registry admin can manage roles")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidOwner      = errors.New("role owner must not be the zero address")
	ErrRoleAlreadyActive = errors.New("role already active")
	ErrRoleNotActive     = errors.New("role not active")
)

type Registry struct {
	mu      sync.RWMutex
	id      account.Address
	admin   account.Address
	records map[recordKey]*RoleRecord

	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRegistry(id, admin account.Address, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		id:      id,
		admin:   admin,
		records: make(map[recordKey]*RoleRecord),
		logger:  logger,
		now:     time.Now,
	}
}

func (r *Registry) ID() account.Address {
	return r.id
}

func (r *Registry) Admin() account.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admin
}

// Grant activates role for owner. Only the registry admin may grant.
func (r *Registry) Grant(ctx context.Context, authority, owner account.Address, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if owner.IsZero() {
		return ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if authority != r.admin {
		return ErrUnauthorized
	}

	key := recordKey{owner: owner, role: role}
	rec, ok := r.records[key]
	if !ok {
		rec = &RoleRecord{Registry: r.id, Owner: owner, Role: role, Status: StatusUnset}
		r.records[key] = rec
	}
	if !rec.Status.CanTransition(StatusActive) {
		return fmt.Errorf("%w: %s for %s", ErrRoleAlreadyActive, role, owner)
	}
	rec.Status = StatusActive
	rec.UpdatedAt = r.now().Unix()

	r.logger.Infow("Role granted", "registry", r.id.ShortString(), "owner", owner.String(), "role", role)
	return nil
}

func (r *Registry) Revoke(ctx context.Context, authority, owner account.Address, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if authority != r.admin {
		return ErrUnauthorized
	}

	rec, ok := r.records[recordKey{owner: owner, role: role}]
	if !ok || !rec.Status.CanTransition(StatusRevoked) {
		return fmt.Errorf("%w: %s for %s", ErrRoleNotActive, role, owner)
	}
	rec.Status = StatusRevoked
	rec.UpdatedAt = r.now().Unix()

	r.logger.Infow("Role revoked", "registry", r.id.ShortString(), "owner", owner.String(), "role", role)
	return nil
}

// HasRole reports whether caller holds role in the registry identified by
// registryID. The registry admin holds every role.
func (r *Registry) HasRole(ctx context.Context, registryID, caller account.Address, role Role) (bool, error) {
	if registryID != r.id {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if caller == r.admin {
		return true, nil
	}
	rec, ok := r.records[recordKey{owner: caller, role: role}]
	if !ok {
		return false, nil
	}
	return rec.Active() && rec.Registry == registryID && rec.Owner == caller && rec.Role == role, nil
}

func (r *Registry) Record(owner account.Address, role Role) (RoleRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[recordKey{owner: owner, role: role}]
	if !ok {
		return RoleRecord{Registry: r.id, Owner: owner, Role: role}, false
	}
	return *rec, true
}

// Records lists every record ordered by owner then role.
func (r *Registry) Records() []RoleRecord {
	r.mu.RLock()
	out := make([]RoleRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner.String() < out[j].Owner.String()
		}
		return out[i].Role < out[j].Role
	})
	return out
}

type snapshot struct {
	ID      account.Address `json:"id"`
	Admin   account.Address `json:"admin"`
	Records []RoleRecord    `json:"records"`
}

func (r *Registry) Export() ([]byte, error) {
	return json.Marshal(snapshot{ID: r.id, Admin: r.Admin(), Records: r.Records()})
}

func (r *Registry) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode role registry snapshot: %w", err)
	}
	if snap.ID != r.id {
		return fmt.Errorf("role registry snapshot belongs to %s, not %s", snap.ID, r.id)
	}

	records := make(map[recordKey]*RoleRecord, len(snap.Records))
	for i := range snap.Records {
		rec := snap.Records[i]
		records[recordKey{owner: rec.Owner, role: rec.Role}] = &rec
	}

	r.mu.Lock()
	r.admin = snap.Admin
	r.records = records
	r.mu.Unlock()
	return nil
}
