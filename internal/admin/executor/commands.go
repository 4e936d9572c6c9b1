package executor

import (
	"zkbadge/internal/membership/models"
	"zkbadge/pkg/domain"
)

// Command is a privileged state change. The set is closed: Execute handles
// every implementation.
type Command interface {
	Name() string
	isCommand()
}

// AddDomain whitelists an email domain pattern on the ledger and locally.
type AddDomain struct {
	Pattern string
}

// RemoveDomain drops a whitelisted pattern by local id.
type RemoveDomain struct {
	ID domain.DomainID
}

// RevokeMembership revokes the holder's credential on the ledger and locally.
type RevokeMembership struct {
	Address domain.Address
}

// VerifyMembership marks a pending credential verified. The contract has no
// verify entry point, so only the local registry changes.
type VerifyMembership struct {
	BadgeID domain.BadgeID
}

func (AddDomain) Name() string        { return "add_domain" }
func (RemoveDomain) Name() string     { return "remove_domain" }
func (RevokeMembership) Name() string { return "revoke_membership" }
func (VerifyMembership) Name() string { return "verify_membership" }

func (AddDomain) isCommand()        {}
func (RemoveDomain) isCommand()     {}
func (RevokeMembership) isCommand() {}
func (VerifyMembership) isCommand() {}

// Result reports what a command changed.
type Result struct {
	Command    string                    `json:"command"`
	Digest     string                    `json:"digest,omitempty"`
	Attempts   int                       `json:"attempts"`
	Domain     *models.WhitelistedDomain `json:"domain,omitempty"`
	Credential *models.Credential        `json:"credential,omitempty"`
	// LedgerSkipped is set when the ledger already held the desired state or
	// never knew the member, so no transaction was needed.
	LedgerSkipped bool `json:"ledger_skipped,omitempty"`
}
