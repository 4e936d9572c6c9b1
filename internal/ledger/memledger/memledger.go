// Package memledger is an in-memory ledger that enforces the same registry
// rules as the deployed contract. It backs development mode and tests, and
// can inject faults.
package memledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
	"zkbadge/pkg/email"
)

// Abort codes reported in failed transaction effects.
const (
	AbortDomainNotAllowed = "EDomainNotAllowed"
	AbortAlreadyMember    = "EAlreadyMember"
	AbortMemberRevoked    = "EMemberRevoked"
	AbortDomainExists     = "EDomainExists"
	AbortDomainNotFound   = "EDomainNotFound"
	AbortMemberNotFound   = "EMemberNotFound"
	AbortBadSignature     = "EInvalidSignature"
)

type member struct {
	badgeID string
	digest  string
	revoked bool
}

// Ledger is safe for concurrent use.
type Ledger struct {
	registryRef string
	adminCapID  string

	mu      sync.Mutex
	domains map[string]struct{}
	members map[domain.Address]*member
	badges  map[string]domain.Address
	effects map[string]*ledger.Effects
	held    map[string]*ledger.Effects
	hold    bool
	faults  []error
	latency time.Duration
}

func New(registryRef, adminCapID string) *Ledger {
	return &Ledger{
		registryRef: registryRef,
		adminCapID:  adminCapID,
		domains:     make(map[string]struct{}),
		members:     make(map[domain.Address]*member),
		badges:      make(map[string]domain.Address),
		effects:     make(map[string]*ledger.Effects),
		held:        make(map[string]*ledger.Effects),
	}
}

func (l *Ledger) RegistryRef() string { return l.registryRef }

func (l *Ledger) AdminCap() ledger.AdminCap { return ledger.AdminCap{ObjectID: l.adminCapID} }

// SeedDomain allows a domain without a transaction.
func (l *Ledger) SeedDomain(pattern string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains[strings.ToLower(pattern)] = struct{}{}
}

// FailNext makes the next len(errs) calls return the given errors in order.
func (l *Ledger) FailNext(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, errs...)
}

// SetLatency delays every call by d, honouring ctx.
func (l *Ledger) SetLatency(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latency = d
}

// HoldEffects makes new transactions report TxUnknown until Release.
func (l *Ledger) HoldEffects(hold bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hold = hold
}

// Release publishes the effects of every held transaction.
func (l *Ledger) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for digest, fx := range l.held {
		l.effects[digest] = fx
		delete(l.held, digest)
	}
}

func (l *Ledger) enter(ctx context.Context, op string) error {
	l.mu.Lock()
	latency := l.latency
	var fault error
	if len(l.faults) > 0 {
		fault = l.faults[0]
		l.faults = l.faults[1:]
	}
	l.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ledger.NewError(ledger.CategoryTimeout, op, "ledger call timed out", ctx.Err())
		case <-time.After(latency):
		}
	}
	if fault != nil {
		return fault
	}
	if err := ctx.Err(); err != nil {
		return ledger.NewError(ledger.CategoryTimeout, op, "ledger call cancelled", err)
	}
	return nil
}

func newObjectID() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return "0x" + hex.EncodeToString(b[:])
}

// record stores effects and returns the receipt. Caller holds l.mu.
func (l *Ledger) record(status ledger.TxStatus, badgeID, abort string) *ledger.Receipt {
	digest := newObjectID()
	fx := &ledger.Effects{Digest: digest, Status: status, BadgeID: badgeID, Error: abort}
	if l.hold {
		l.held[digest] = fx
	} else {
		l.effects[digest] = fx
	}
	return &ledger.Receipt{Digest: digest}
}

func (l *Ledger) allowed(emailDomain string) bool {
	emailDomain = strings.ToLower(emailDomain)
	if emailDomain == "" {
		return false
	}
	for pattern := range l.domains {
		if strings.HasSuffix(emailDomain, pattern) {
			return true
		}
	}
	return false
}

func (l *Ledger) RegisterMember(ctx context.Context, req ledger.RegisterMember) (*ledger.Receipt, error) {
	if err := l.enter(ctx, "register_member"); err != nil {
		return nil, err
	}
	if req.Sender.IsZero() {
		return nil, ledger.NewError(ledger.CategoryMalformed, "register_member", "sender required", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !req.VerifySignature(l.registryRef) {
		return l.record(ledger.TxFailure, "", AbortBadSignature), nil
	}
	if !l.allowed(req.EmailDomain) {
		return l.record(ledger.TxFailure, "", AbortDomainNotAllowed), nil
	}
	if m, ok := l.members[req.Sender]; ok {
		if m.revoked {
			return l.record(ledger.TxFailure, "", AbortMemberRevoked), nil
		}
		return l.record(ledger.TxFailure, "", AbortAlreadyMember), nil
	}

	badgeID := newObjectID()
	receipt := l.record(ledger.TxSuccess, badgeID, "")
	l.members[req.Sender] = &member{badgeID: badgeID, digest: receipt.Digest}
	l.badges[badgeID] = req.Sender
	return receipt, nil
}

func (l *Ledger) VerifyBadge(ctx context.Context, badgeID string, claimed domain.Address) (bool, error) {
	if err := l.enter(ctx, "verify_badge"); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	holder, ok := l.badges[badgeID]
	if !ok || !holder.EqualFold(claimed.String()) {
		return false, nil
	}
	return !l.members[holder].revoked, nil
}

func (l *Ledger) IsDomainAllowed(ctx context.Context, emailDomain string) (bool, error) {
	if err := l.enter(ctx, "is_domain_allowed"); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.Contains(emailDomain, "@") && !strings.HasPrefix(emailDomain, "@") {
		emailDomain = email.Domain(emailDomain)
	}
	return l.allowed(emailDomain), nil
}

func (l *Ledger) checkCap(op string, adminCap ledger.AdminCap) error {
	if adminCap.ObjectID == "" || adminCap.ObjectID != l.adminCapID {
		return ledger.NewError(ledger.CategoryUnauthorized, op, "admin capability not owned by signer", nil)
	}
	return nil
}

func (l *Ledger) AddAllowedDomain(ctx context.Context, adminCap ledger.AdminCap, pattern string) (*ledger.Receipt, error) {
	if err := l.enter(ctx, "add_allowed_domain"); err != nil {
		return nil, err
	}
	if err := l.checkCap("add_allowed_domain", adminCap); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(pattern)
	if _, ok := l.domains[key]; ok {
		return l.record(ledger.TxFailure, "", AbortDomainExists), nil
	}
	l.domains[key] = struct{}{}
	return l.record(ledger.TxSuccess, "", ""), nil
}

func (l *Ledger) RemoveAllowedDomain(ctx context.Context, adminCap ledger.AdminCap, pattern string) (*ledger.Receipt, error) {
	if err := l.enter(ctx, "remove_allowed_domain"); err != nil {
		return nil, err
	}
	if err := l.checkCap("remove_allowed_domain", adminCap); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(pattern)
	if _, ok := l.domains[key]; !ok {
		return l.record(ledger.TxFailure, "", AbortDomainNotFound), nil
	}
	delete(l.domains, key)
	return l.record(ledger.TxSuccess, "", ""), nil
}

func (l *Ledger) RevokeMembership(ctx context.Context, adminCap ledger.AdminCap, addr domain.Address) (*ledger.Receipt, error) {
	if err := l.enter(ctx, "revoke_membership"); err != nil {
		return nil, err
	}
	if err := l.checkCap("revoke_membership", adminCap); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[addr]
	if !ok || m.revoked {
		return l.record(ledger.TxFailure, "", AbortMemberNotFound), nil
	}
	m.revoked = true
	return l.record(ledger.TxSuccess, m.badgeID, ""), nil
}

func (l *Ledger) TransactionEffects(ctx context.Context, digest string) (*ledger.Effects, error) {
	if err := l.enter(ctx, "transaction_effects"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if fx, ok := l.effects[digest]; ok {
		cp := *fx
		return &cp, nil
	}
	if _, ok := l.held[digest]; ok {
		return &ledger.Effects{Digest: digest, Status: ledger.TxUnknown}, nil
	}
	return nil, ledger.NewError(ledger.CategoryNotFound, "transaction_effects", "unknown digest", nil)
}

func (l *Ledger) MemberRecord(ctx context.Context, addr domain.Address) (*ledger.MemberRecord, error) {
	if err := l.enter(ctx, "member_record"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[addr]
	if !ok {
		return nil, ledger.NewError(ledger.CategoryNotFound, "member_record", "no such member", nil)
	}
	return &ledger.MemberRecord{Address: addr, BadgeID: m.badgeID, Digest: m.digest, Revoked: m.revoked}, nil
}

var _ ledger.Client = (*Ledger)(nil)
