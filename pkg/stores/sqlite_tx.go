package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/covenantdao/covenant/pkg/engine"
)

// sqlTx implements engine.Tx over a database transaction.
type sqlTx struct {
	tx *sql.Tx
}

// Identity

func (t *sqlTx) UserID(ctx context.Context, addr engine.Address) (uint64, error) {
	var id uint64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM users WHERE address = ?`, string(addr)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", err)
	}
	return id, nil
}

func (t *sqlTx) EnsureUser(ctx context.Context, addr engine.Address) (uint64, error) {
	id, err := t.UserID(ctx, addr)
	if err != nil || id != 0 {
		return id, err
	}

	res, err := t.tx.ExecContext(ctx, `INSERT INTO users (address) VALUES (?)`, string(addr))
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	last, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", err)
	}
	return uint64(last), nil
}

func (t *sqlTx) UserAddress(ctx context.Context, id uint64) (engine.Address, error) {
	var addr string
	err := t.tx.QueryRowContext(ctx, `SELECT address FROM users WHERE id = ?`, id).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user address: %w", err)
	}
	return engine.Address(addr), nil
}

// Roles

func (t *sqlTx) GetRole(ctx context.Context, name string) (*engine.Role, error) {
	role := &engine.Role{}
	err := t.tx.QueryRowContext(ctx, `SELECT name, member_count FROM roles WHERE name = ?`, name).
		Scan(&role.Name, &role.MemberCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (t *sqlTx) PutRole(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles (name, member_count) VALUES (?, 0)`, name); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// DeleteRole relies on ON DELETE CASCADE for memberships and policies.
func (t *sqlTx) DeleteRole(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM roles WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

func (t *sqlTx) ListRoles(ctx context.Context) ([]engine.Role, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT name, member_count FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []engine.Role
	for rows.Next() {
		var r engine.Role
		if err := rows.Scan(&r.Name, &r.MemberCount); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (t *sqlTx) AddRoleMember(ctx context.Context, role string, userID uint64) (bool, error) {
	existing, err := t.GetRole(ctx, role)
	if err != nil || existing == nil {
		return false, err
	}

	res, err := t.tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_members (role, user_id) VALUES (?, ?)`, role, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add role member: %w", err)
	}
	return t.adjustMemberCount(ctx, res, role, 1)
}

func (t *sqlTx) RemoveRoleMember(ctx context.Context, role string, userID uint64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM role_members WHERE role = ? AND user_id = ?`, role, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove role member: %w", err)
	}
	return t.adjustMemberCount(ctx, res, role, -1)
}

// adjustMemberCount applies delta to the role's member count when res changed a row.
func (t *sqlTx) adjustMemberCount(ctx context.Context, res sql.Result, role string, delta int) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE roles SET member_count = member_count + ? WHERE name = ?`, delta, role); err != nil {
		return false, fmt.Errorf("failed to update member count: %w", err)
	}
	return true, nil
}

func (t *sqlTx) RoleMembers(ctx context.Context, role string) ([]uint64, error) {
	return t.queryIDs(ctx, `SELECT user_id FROM role_members WHERE role = ? ORDER BY user_id`, role)
}

func (t *sqlTx) UserRoles(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT role FROM role_members WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (t *sqlTx) queryIDs(ctx context.Context, query string, args ...interface{}) ([]uint64, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Permissions

const permissionColumns = `name, value_limit, destination, endpoint, arguments, payments`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPermission(row rowScanner) (*engine.Permission, error) {
	var (
		name, limit, dest, endpoint string
		args, payments              []byte
	)
	if err := row.Scan(&name, &limit, &dest, &endpoint, &args, &payments); err != nil {
		return nil, err
	}

	value, err := parseAmount(limit)
	if err != nil {
		return nil, err
	}
	perm := &engine.Permission{
		Name:        name,
		ValueLimit:  value,
		Destination: engine.Address(dest),
		Endpoint:    endpoint,
	}
	if err := decodeList(args, &perm.Arguments); err != nil {
		return nil, err
	}
	if err := decodeList(payments, &perm.Payments); err != nil {
		return nil, err
	}
	return perm, nil
}

func (t *sqlTx) GetPermission(ctx context.Context, name string) (*engine.Permission, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = ?`, name)
	perm, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return perm, nil
}

func (t *sqlTx) PutPermission(ctx context.Context, perm *engine.Permission) error {
	args, err := encodeList(perm.Arguments, len(perm.Arguments))
	if err != nil {
		return err
	}
	payments, err := encodeList(perm.Payments, len(perm.Payments))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO permissions (` + permissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value_limit = excluded.value_limit,
			destination = excluded.destination,
			endpoint = excluded.endpoint,
			arguments = excluded.arguments,
			payments = excluded.payments
	`
	_, err = t.tx.ExecContext(ctx, query,
		perm.Name,
		formatAmount(perm.ValueLimit),
		string(perm.Destination),
		perm.Endpoint,
		args,
		payments,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

// DeletePermission relies on ON DELETE CASCADE for policies.
func (t *sqlTx) DeletePermission(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM permissions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return nil
}

func (t *sqlTx) ListPermissions(ctx context.Context) ([]engine.Permission, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []engine.Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

// Policies

const policyColumns = `role, permission, method, quorum, voting_period_minutes`

func scanPolicy(row rowScanner) (*engine.Policy, error) {
	var (
		p      engine.Policy
		method string
		quorum string
	)
	if err := row.Scan(&p.Role, &p.Permission, &method, &quorum, &p.VotingPeriodMinutes); err != nil {
		return nil, err
	}
	q, err := parseAmount(quorum)
	if err != nil {
		return nil, err
	}
	p.Method = engine.PolicyMethod(method)
	p.Quorum = q
	return &p, nil
}

func (t *sqlTx) GetPolicy(ctx context.Context, role, permission string) (*engine.Policy, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE role = ? AND permission = ?`, role, permission)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

func (t *sqlTx) PutPolicy(ctx context.Context, policy *engine.Policy) error {
	query := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(role, permission) DO UPDATE SET
			method = excluded.method,
			quorum = excluded.quorum,
			voting_period_minutes = excluded.voting_period_minutes
	`
	_, err := t.tx.ExecContext(ctx, query,
		policy.Role,
		policy.Permission,
		string(policy.Method),
		formatAmount(policy.Quorum),
		policy.VotingPeriodMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}
	return nil
}

func (t *sqlTx) DeletePolicy(ctx context.Context, role, permission string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM policies WHERE role = ? AND permission = ?`, role, permission); err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return nil
}

func (t *sqlTx) queryPolicies(ctx context.Context, query string, args ...interface{}) ([]engine.Policy, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []engine.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func (t *sqlTx) PoliciesForRole(ctx context.Context, role string) ([]engine.Policy, error) {
	return t.queryPolicies(ctx, `SELECT `+policyColumns+` FROM policies WHERE role = ? ORDER BY permission`, role)
}

func (t *sqlTx) ListPolicies(ctx context.Context) ([]engine.Policy, error) {
	return t.queryPolicies(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY role, permission`)
}

// Proposals

const proposalColumns = `id, proposer, content_hash, actions_hash, starts_at, ends_at, executed, votes_for, votes_against, permissions`

func (t *sqlTx) CreateProposal(ctx context.Context, p *engine.Proposal) (uint64, error) {
	id, err := t.ProposalCount(ctx)
	if err != nil {
		return 0, err
	}
	perms, err := encodeList(p.Permissions, len(p.Permissions))
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO proposals (` + proposalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = t.tx.ExecContext(ctx, query,
		id,
		string(p.Proposer),
		p.ContentHash,
		p.ActionsHash,
		p.StartsAt.UnixNano(),
		p.EndsAt.UnixNano(),
		p.Executed,
		formatAmount(p.VotesFor),
		formatAmount(p.VotesAgainst),
		perms,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create proposal: %w", err)
	}
	return id, nil
}

func (t *sqlTx) GetProposal(ctx context.Context, id uint64) (*engine.Proposal, error) {
	var (
		p                  engine.Proposal
		proposer           string
		startsAt, endsAt   int64
		votesFor, votesAgn string
		perms              []byte
	)
	err := t.tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id).Scan(
		&p.ID,
		&proposer,
		&p.ContentHash,
		&p.ActionsHash,
		&startsAt,
		&endsAt,
		&p.Executed,
		&votesFor,
		&votesAgn,
		&perms,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	p.Proposer = engine.Address(proposer)
	p.StartsAt = time.Unix(0, startsAt).UTC()
	p.EndsAt = time.Unix(0, endsAt).UTC()
	if p.VotesFor, err = parseAmount(votesFor); err != nil {
		return nil, err
	}
	if p.VotesAgainst, err = parseAmount(votesAgn); err != nil {
		return nil, err
	}
	if err := decodeList(perms, &p.Permissions); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *sqlTx) UpdateProposal(ctx context.Context, p *engine.Proposal) error {
	query := `
		UPDATE proposals
		SET executed = ?, votes_for = ?, votes_against = ?
		WHERE id = ?
	`
	res, err := t.tx.ExecContext(ctx, query, p.Executed, formatAmount(p.VotesFor), formatAmount(p.VotesAgainst), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) ProposalCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM proposals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}
	return n, nil
}

func (t *sqlTx) AddSigner(ctx context.Context, proposalID uint64, role string, userID uint64) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO proposal_signers (proposal_id, role, user_id) VALUES (?, ?, ?)`,
		proposalID, role, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add signer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) Signers(ctx context.Context, proposalID uint64, role string) ([]uint64, error) {
	return t.queryIDs(ctx,
		`SELECT user_id FROM proposal_signers WHERE proposal_id = ? AND role = ? ORDER BY user_id`,
		proposalID, role)
}

func (t *sqlTx) AddPollVote(ctx context.Context, proposalID uint64, option uint8, weight *big.Int) error {
	var current string
	err := t.tx.QueryRowContext(ctx,
		`SELECT weight FROM poll_votes WHERE proposal_id = ? AND option_id = ?`, proposalID, option).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get poll tally: %w", err)
	}
	total, err := parseAmount(current)
	if err != nil {
		return err
	}
	total.Add(total, weight)

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO poll_votes (proposal_id, option_id, weight) VALUES (?, ?, ?)
		ON CONFLICT(proposal_id, option_id) DO UPDATE SET weight = excluded.weight
	`, proposalID, option, total.String())
	if err != nil {
		return fmt.Errorf("failed to update poll tally: %w", err)
	}
	return nil
}

func (t *sqlTx) PollResults(ctx context.Context, proposalID uint64) (map[uint8]*big.Int, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT option_id, weight FROM poll_votes WHERE proposal_id = ?`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll results: %w", err)
	}
	defer rows.Close()

	out := make(map[uint8]*big.Int)
	for rows.Next() {
		var (
			option uint8
			weight string
		)
		if err := rows.Scan(&option, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan poll tally: %w", err)
		}
		w, err := parseAmount(weight)
		if err != nil {
			return nil, err
		}
		out[option] = w
	}
	return out, rows.Err()
}

// Deposits

func (t *sqlTx) AddDeposit(ctx context.Context, d engine.Deposit) error {
	var current string
	err := t.tx.QueryRowContext(ctx, `
		SELECT amount FROM vote_deposits
		WHERE proposal_id = ? AND voter = ? AND token = ? AND nonce = ?
	`, d.ProposalID, string(d.Voter), string(d.Token), d.Nonce).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get deposit: %w", err)
	}
	total, err := parseAmount(current)
	if err != nil {
		return err
	}
	total.Add(total, d.Amount)

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO vote_deposits (proposal_id, voter, token, nonce, amount) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(proposal_id, voter, token, nonce) DO UPDATE SET amount = excluded.amount
	`, d.ProposalID, string(d.Voter), string(d.Token), d.Nonce, total.String())
	if err != nil {
		return fmt.Errorf("failed to store deposit: %w", err)
	}
	return nil
}

func (t *sqlTx) TakeDeposits(ctx context.Context, proposalID uint64, voter engine.Address) ([]engine.Deposit, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT token, nonce, amount FROM vote_deposits
		WHERE proposal_id = ? AND voter = ?
		ORDER BY token, nonce
	`, proposalID, string(voter))
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}

	var deposits []engine.Deposit
	for rows.Next() {
		var (
			token  string
			nonce  uint64
			amount string
		)
		if err := rows.Scan(&token, &nonce, &amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		a, err := parseAmount(amount)
		if err != nil {
			rows.Close()
			return nil, err
		}
		deposits = append(deposits, engine.Deposit{
			ProposalID: proposalID,
			Voter:      voter,
			Token:      engine.TokenID(token),
			Nonce:      nonce,
			Amount:     a,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM vote_deposits WHERE proposal_id = ? AND voter = ?`, proposalID, string(voter)); err != nil {
		return nil, fmt.Errorf("failed to delete deposits: %w", err)
	}
	return deposits, nil
}

func (t *sqlTx) Reserved(ctx context.Context, token engine.TokenID, nonce uint64) (*big.Int, error) {
	var amount string
	err := t.tx.QueryRowContext(ctx,
		`SELECT amount FROM reserved_balances WHERE token = ? AND nonce = ?`, string(token), nonce).Scan(&amount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get reserved balance: %w", err)
	}
	return parseAmount(amount)
}

func (t *sqlTx) AdjustReserved(ctx context.Context, token engine.TokenID, nonce uint64, delta *big.Int) error {
	current, err := t.Reserved(ctx, token, nonce)
	if err != nil {
		return err
	}
	next := current.Add(current, delta)
	if next.Sign() < 0 {
		return ErrNegativeReserve
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO reserved_balances (token, nonce, amount) VALUES (?, ?, ?)
		ON CONFLICT(token, nonce) DO UPDATE SET amount = excluded.amount
	`, string(token), nonce, next.String())
	if err != nil {
		return fmt.Errorf("failed to update reserved balance: %w", err)
	}
	return nil
}

// Settings and attestations

func (t *sqlTx) GetSettings(ctx context.Context) (*engine.Settings, error) {
	var (
		s                           engine.Settings
		quorum, minVote, minPropose string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT quorum, min_vote_weight, min_propose_weight, voting_period_minutes, bootstrapped
		FROM settings WHERE id = 1
	`).Scan(&quorum, &minVote, &minPropose, &s.VotingPeriodMinutes, &s.Bootstrapped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if s.Quorum, err = parseAmount(quorum); err != nil {
		return nil, err
	}
	if s.MinVoteWeight, err = parseAmount(minVote); err != nil {
		return nil, err
	}
	if s.MinProposeWeight, err = parseAmount(minPropose); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *sqlTx) PutSettings(ctx context.Context, s *engine.Settings) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO settings (id, quorum, min_vote_weight, min_propose_weight, voting_period_minutes, bootstrapped)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quorum = excluded.quorum,
			min_vote_weight = excluded.min_vote_weight,
			min_propose_weight = excluded.min_propose_weight,
			voting_period_minutes = excluded.voting_period_minutes,
			bootstrapped = excluded.bootstrapped
	`,
		formatAmount(s.Quorum),
		formatAmount(s.MinVoteWeight),
		formatAmount(s.MinProposeWeight),
		s.VotingPeriodMinutes,
		s.Bootstrapped,
	)
	if err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	return nil
}

func (t *sqlTx) ConsumeAttestation(ctx context.Context, host string, id []byte) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO consumed_attestations (host, trusted_host_id, consumed_at) VALUES (?, ?, ?)
	`, host, id, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to record attestation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
