package stores

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/covenantdao/covenant/pkg/engine"
)

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("write attempted in read-only transaction")

type policyKey struct {
	role       string
	permission string
}

type signerKey struct {
	proposal uint64
	role     string
}

type depositKey struct {
	proposal uint64
	voter    engine.Address
}

type tokenKey struct {
	token engine.TokenID
	nonce uint64
}

type attestationKey struct {
	host string
	id   string
}

// memState is the full governance state held by a MemoryStore.
type memState struct {
	users       []engine.Address
	userIDs     map[engine.Address]uint64
	roles       map[string]uint64
	members     map[string]map[uint64]struct{}
	permissions map[string]*engine.Permission
	policies    map[policyKey]*engine.Policy
	proposals   []*engine.Proposal
	signers     map[signerKey]map[uint64]struct{}
	polls       map[uint64]map[uint8]*big.Int
	deposits    map[depositKey][]engine.Deposit
	reserved    map[tokenKey]*big.Int
	settings    *engine.Settings
	consumed    map[attestationKey]struct{}
}

func newMemState() *memState {
	return &memState{
		userIDs:     make(map[engine.Address]uint64),
		roles:       make(map[string]uint64),
		members:     make(map[string]map[uint64]struct{}),
		permissions: make(map[string]*engine.Permission),
		policies:    make(map[policyKey]*engine.Policy),
		signers:     make(map[signerKey]map[uint64]struct{}),
		polls:       make(map[uint64]map[uint8]*big.Int),
		deposits:    make(map[depositKey][]engine.Deposit),
		reserved:    make(map[tokenKey]*big.Int),
		consumed:    make(map[attestationKey]struct{}),
	}
}

// restore returns an undo that puts m[k] back to its current value, or removes it.
func restore[K comparable, V any](m map[K]V, k K) func() {
	old, ok := m[k]
	return func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	}
}

// MemoryStore keeps governance state in memory. Updates are serialized and write to the live
// state directly; each write journals its inverse, and the journal is replayed in reverse
// when the callback fails. The cost of a transaction is proportional to what it writes.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// View implements engine.Store.
func (m *MemoryStore) View(ctx context.Context, fn func(tx engine.Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{state: m.state, readOnly: true})
}

// Update implements engine.Store.
func (m *MemoryStore) Update(ctx context.Context, fn func(tx engine.Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return ctx.Err()
}

// Close implements engine.Store.
func (m *MemoryStore) Close() error {
	return nil
}

// memTx implements engine.Tx over a memState.
type memTx struct {
	state    *memState
	readOnly bool
	undo     []func()
}

func (t *memTx) journal(undo func()) {
	t.undo = append(t.undo, undo)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Identity

func (t *memTx) UserID(ctx context.Context, addr engine.Address) (uint64, error) {
	return t.state.userIDs[addr], nil
}

func (t *memTx) EnsureUser(ctx context.Context, addr engine.Address) (uint64, error) {
	if id, ok := t.state.userIDs[addr]; ok {
		return id, nil
	}
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := len(t.state.users)
	t.journal(func() { t.state.users = t.state.users[:n] })
	t.journal(restore(t.state.userIDs, addr))
	t.state.users = append(t.state.users, addr)
	id := uint64(len(t.state.users))
	t.state.userIDs[addr] = id
	return id, nil
}

func (t *memTx) UserAddress(ctx context.Context, id uint64) (engine.Address, error) {
	if id == 0 || id > uint64(len(t.state.users)) {
		return "", nil
	}
	return t.state.users[id-1], nil
}

// Roles

func (t *memTx) GetRole(ctx context.Context, name string) (*engine.Role, error) {
	count, ok := t.state.roles[name]
	if !ok {
		return nil, nil
	}
	return &engine.Role{Name: name, MemberCount: count}, nil
}

func (t *memTx) PutRole(ctx context.Context, name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.roles[name]; ok {
		return nil
	}
	t.journal(restore(t.state.roles, name))
	t.journal(restore(t.state.members, name))
	t.state.roles[name] = 0
	t.state.members[name] = make(map[uint64]struct{})
	return nil
}

func (t *memTx) DeleteRole(ctx context.Context, name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.journal(restore(t.state.roles, name))
	t.journal(restore(t.state.members, name))
	delete(t.state.roles, name)
	delete(t.state.members, name)
	for k := range t.state.policies {
		if k.role == name {
			t.journal(restore(t.state.policies, k))
			delete(t.state.policies, k)
		}
	}
	return nil
}

func (t *memTx) ListRoles(ctx context.Context) ([]engine.Role, error) {
	out := make([]engine.Role, 0, len(t.state.roles))
	for name, count := range t.state.roles {
		out = append(out, engine.Role{Name: name, MemberCount: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) AddRoleMember(ctx context.Context, role string, userID uint64) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	members, ok := t.state.members[role]
	if !ok {
		return false, nil
	}
	if _, exists := members[userID]; exists {
		return false, nil
	}
	t.journal(restore(t.state.roles, role))
	t.journal(func() { delete(members, userID) })
	members[userID] = struct{}{}
	t.state.roles[role] = uint64(len(members))
	return true, nil
}

func (t *memTx) RemoveRoleMember(ctx context.Context, role string, userID uint64) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	members, ok := t.state.members[role]
	if !ok {
		return false, nil
	}
	if _, exists := members[userID]; !exists {
		return false, nil
	}
	t.journal(restore(t.state.roles, role))
	t.journal(func() { members[userID] = struct{}{} })
	delete(members, userID)
	t.state.roles[role] = uint64(len(members))
	return true, nil
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *memTx) RoleMembers(ctx context.Context, role string) ([]uint64, error) {
	return sortedIDs(t.state.members[role]), nil
}

func (t *memTx) UserRoles(ctx context.Context, userID uint64) ([]string, error) {
	var out []string
	for role, members := range t.state.members {
		if _, ok := members[userID]; ok {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Permissions and policies

func (t *memTx) GetPermission(ctx context.Context, name string) (*engine.Permission, error) {
	p, ok := t.state.permissions[name]
	if !ok {
		return nil, nil
	}
	return copyPermission(p), nil
}

func (t *memTx) PutPermission(ctx context.Context, perm *engine.Permission) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.journal(restore(t.state.permissions, perm.Name))
	t.state.permissions[perm.Name] = copyPermission(perm)
	return nil
}

func (t *memTx) DeletePermission(ctx context.Context, name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.journal(restore(t.state.permissions, name))
	delete(t.state.permissions, name)
	for k := range t.state.policies {
		if k.permission == name {
			t.journal(restore(t.state.policies, k))
			delete(t.state.policies, k)
		}
	}
	return nil
}

func (t *memTx) ListPermissions(ctx context.Context) ([]engine.Permission, error) {
	out := make([]engine.Permission, 0, len(t.state.permissions))
	for _, p := range t.state.permissions {
		out = append(out, *copyPermission(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) GetPolicy(ctx context.Context, role, permission string) (*engine.Policy, error) {
	p, ok := t.state.policies[policyKey{role, permission}]
	if !ok {
		return nil, nil
	}
	return copyPolicy(p), nil
}

func (t *memTx) PutPolicy(ctx context.Context, policy *engine.Policy) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := policyKey{policy.Role, policy.Permission}
	t.journal(restore(t.state.policies, key))
	t.state.policies[key] = copyPolicy(policy)
	return nil
}

func (t *memTx) DeletePolicy(ctx context.Context, role, permission string) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := policyKey{role, permission}
	t.journal(restore(t.state.policies, key))
	delete(t.state.policies, key)
	return nil
}

func sortPolicies(out []engine.Policy) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Permission < out[j].Permission
	})
}

func (t *memTx) PoliciesForRole(ctx context.Context, role string) ([]engine.Policy, error) {
	var out []engine.Policy
	for k, p := range t.state.policies {
		if k.role == role {
			out = append(out, *copyPolicy(p))
		}
	}
	sortPolicies(out)
	return out, nil
}

func (t *memTx) ListPolicies(ctx context.Context) ([]engine.Policy, error) {
	out := make([]engine.Policy, 0, len(t.state.policies))
	for _, p := range t.state.policies {
		out = append(out, *copyPolicy(p))
	}
	sortPolicies(out)
	return out, nil
}

// Proposals

func (t *memTx) CreateProposal(ctx context.Context, p *engine.Proposal) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	id := uint64(len(t.state.proposals))
	t.journal(func() { t.state.proposals = t.state.proposals[:id] })
	stored := copyProposal(p)
	stored.ID = id
	t.state.proposals = append(t.state.proposals, stored)
	return id, nil
}

func (t *memTx) GetProposal(ctx context.Context, id uint64) (*engine.Proposal, error) {
	if id >= uint64(len(t.state.proposals)) {
		return nil, nil
	}
	return copyProposal(t.state.proposals[id]), nil
}

func (t *memTx) UpdateProposal(ctx context.Context, p *engine.Proposal) error {
	if err := t.writable(); err != nil {
		return err
	}
	if p.ID >= uint64(len(t.state.proposals)) {
		return ErrNotFound
	}
	old := t.state.proposals[p.ID]
	t.journal(func() { t.state.proposals[p.ID] = old })
	t.state.proposals[p.ID] = copyProposal(p)
	return nil
}

func (t *memTx) ProposalCount(ctx context.Context) (uint64, error) {
	return uint64(len(t.state.proposals)), nil
}

func (t *memTx) AddSigner(ctx context.Context, proposalID uint64, role string, userID uint64) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	key := signerKey{proposalID, role}
	set, ok := t.state.signers[key]
	if !ok {
		t.journal(restore(t.state.signers, key))
		set = make(map[uint64]struct{})
		t.state.signers[key] = set
	}
	if _, exists := set[userID]; exists {
		return false, nil
	}
	t.journal(func() { delete(set, userID) })
	set[userID] = struct{}{}
	return true, nil
}

func (t *memTx) Signers(ctx context.Context, proposalID uint64, role string) ([]uint64, error) {
	return sortedIDs(t.state.signers[signerKey{proposalID, role}]), nil
}

func (t *memTx) AddPollVote(ctx context.Context, proposalID uint64, option uint8, weight *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	tally, ok := t.state.polls[proposalID]
	if !ok {
		t.journal(restore(t.state.polls, proposalID))
		tally = make(map[uint8]*big.Int)
		t.state.polls[proposalID] = tally
	}
	t.journal(restore(tally, option))
	tally[option] = new(big.Int).Add(copyAmount(tally[option]), weight)
	return nil
}

func (t *memTx) PollResults(ctx context.Context, proposalID uint64) (map[uint8]*big.Int, error) {
	out := make(map[uint8]*big.Int)
	for opt, w := range t.state.polls[proposalID] {
		out[opt] = copyAmount(w)
	}
	return out, nil
}

func (t *memTx) AddDeposit(ctx context.Context, d engine.Deposit) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := depositKey{d.ProposalID, d.Voter}
	t.journal(restore(t.state.deposits, key))
	list := append([]engine.Deposit(nil), t.state.deposits[key]...)
	for i := range list {
		if list[i].Token == d.Token && list[i].Nonce == d.Nonce {
			list[i].Amount = new(big.Int).Add(list[i].Amount, d.Amount)
			t.state.deposits[key] = list
			return nil
		}
	}
	d.Amount = copyAmount(d.Amount)
	t.state.deposits[key] = append(list, d)
	return nil
}

func (t *memTx) TakeDeposits(ctx context.Context, proposalID uint64, voter engine.Address) ([]engine.Deposit, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	key := depositKey{proposalID, voter}
	list := t.state.deposits[key]
	t.journal(restore(t.state.deposits, key))
	delete(t.state.deposits, key)
	return list, nil
}

func (t *memTx) Reserved(ctx context.Context, token engine.TokenID, nonce uint64) (*big.Int, error) {
	return copyAmount(t.state.reserved[tokenKey{token, nonce}]), nil
}

func (t *memTx) AdjustReserved(ctx context.Context, token engine.TokenID, nonce uint64, delta *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := tokenKey{token, nonce}
	next := new(big.Int).Add(copyAmount(t.state.reserved[key]), delta)
	if next.Sign() < 0 {
		return ErrNegativeReserve
	}
	t.journal(restore(t.state.reserved, key))
	t.state.reserved[key] = next
	return nil
}

// Settings and attestations

func (t *memTx) GetSettings(ctx context.Context) (*engine.Settings, error) {
	if t.state.settings == nil {
		return nil, nil
	}
	return t.state.settings.Clone(), nil
}

func (t *memTx) PutSettings(ctx context.Context, s *engine.Settings) error {
	if err := t.writable(); err != nil {
		return err
	}
	old := t.state.settings
	t.journal(func() { t.state.settings = old })
	t.state.settings = s.Clone()
	return nil
}

func (t *memTx) ConsumeAttestation(ctx context.Context, host string, id []byte) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	key := attestationKey{host, string(id)}
	if _, ok := t.state.consumed[key]; ok {
		return false, nil
	}
	t.journal(restore(t.state.consumed, key))
	t.state.consumed[key] = struct{}{}
	return true, nil
}

var _ engine.Store = (*MemoryStore)(nil)
