package services

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"minesweeper-rewards/internal/models"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleSigner Role = "signer"
	RoleMinter Role = "minter"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleSigner, RoleMinter:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

type roleSet struct {
	members map[common.Address]struct{}
	lastErr error
	added   models.EventType
	removed models.EventType
}

// RoleRegistry is the privileged-principal bookkeeping of one contract. Game
// and token contracts each hold their own instance.
type RoleRegistry struct {
	contract     common.Address
	primaryOwner common.Address
	sets         map[Role]*roleSet
	events       *EventLog
}

func NewRoleRegistry(contract, primaryOwner common.Address, events *EventLog) *RoleRegistry {
	r := &RoleRegistry{
		contract:     contract,
		primaryOwner: primaryOwner,
		events:       events,
		sets: map[Role]*roleSet{
			RoleOwner:  {members: map[common.Address]struct{}{}, lastErr: ErrLastOwner, added: models.EventOwnerAdded, removed: models.EventOwnerRemoved},
			RoleSigner: {members: map[common.Address]struct{}{}, lastErr: ErrLastSigner, added: models.EventSignerAdded, removed: models.EventSignerRemoved},
			RoleMinter: {members: map[common.Address]struct{}{}, lastErr: ErrLastMinter, added: models.EventMinterAdded, removed: models.EventMinterRemoved},
		},
	}
	r.sets[RoleOwner].members[primaryOwner] = struct{}{}
	return r
}

// seed installs construction-time members without an owner check.
func (r *RoleRegistry) seed(role Role, addrs ...common.Address) {
	for _, a := range addrs {
		if a != (common.Address{}) {
			r.sets[role].members[a] = struct{}{}
		}
	}
}

func (r *RoleRegistry) PrimaryOwner() common.Address {
	return r.primaryOwner
}

func (r *RoleRegistry) Contract() common.Address {
	return r.contract
}

func (r *RoleRegistry) requireOwner(caller common.Address) error {
	if !r.Has(RoleOwner, caller) {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}

func (r *RoleRegistry) Has(role Role, who common.Address) bool {
	set, ok := r.sets[role]
	if !ok {
		return false
	}
	_, ok = set.members[who]
	return ok
}

// Members lists a role's principals in address order.
func (r *RoleRegistry) Members(role Role) []common.Address {
	set, ok := r.sets[role]
	if !ok {
		return nil
	}
	out := lo.Keys(set.members)
	slices.SortFunc(out, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

func (r *RoleRegistry) Grant(caller common.Address, role Role, who common.Address) error {
	set, ok := r.sets[role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if who == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, exists := set.members[who]; exists {
		return fmt.Errorf("%w: %s already %s", ErrAlreadyExists, who.Hex(), role)
	}

	set.members[who] = struct{}{}
	r.events.Emit(r.contract, set.added, who, 0, map[string]any{"account": who, "by": caller})
	return nil
}

func (r *RoleRegistry) Revoke(caller common.Address, role Role, who common.Address) error {
	set, ok := r.sets[role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if _, exists := set.members[who]; !exists {
		return fmt.Errorf("%w: %s is not %s", ErrNotFound, who.Hex(), role)
	}
	if role == RoleOwner && who == r.primaryOwner {
		return ErrPrimaryOwnerProtected
	}
	if len(set.members) == 1 {
		return set.lastErr
	}

	delete(set.members, who)
	r.events.Emit(r.contract, set.removed, who, 0, map[string]any{"account": who, "by": caller})
	return nil
}

func (r *RoleRegistry) AddOwner(caller, who common.Address) error {
	return r.Grant(caller, RoleOwner, who)
}

func (r *RoleRegistry) RemoveOwner(caller, who common.Address) error {
	return r.Revoke(caller, RoleOwner, who)
}

func (r *RoleRegistry) IsOwner(who common.Address) bool {
	return r.Has(RoleOwner, who)
}

func (r *RoleRegistry) AddAuthorizedSigner(caller, who common.Address) error {
	return r.Grant(caller, RoleSigner, who)
}

func (r *RoleRegistry) RemoveAuthorizedSigner(caller, who common.Address) error {
	return r.Revoke(caller, RoleSigner, who)
}

func (r *RoleRegistry) IsAuthorizedSigner(who common.Address) bool {
	return r.Has(RoleSigner, who)
}

func (r *RoleRegistry) AddAuthorizedMinter(caller, who common.Address) error {
	return r.Grant(caller, RoleMinter, who)
}

func (r *RoleRegistry) RemoveAuthorizedMinter(caller, who common.Address) error {
	return r.Revoke(caller, RoleMinter, who)
}

func (r *RoleRegistry) IsAuthorizedMinter(who common.Address) bool {
	return r.Has(RoleMinter, who)
}
