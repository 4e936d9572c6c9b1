package audit

import "time"

// EventType names an auditable action.
type EventType string

const (
	EventHandshakeStarted    EventType = "handshake_started"
	EventHandshakeCompleted  EventType = "handshake_completed"
	EventHandshakeFailed     EventType = "handshake_failed"
	EventLoggedIn            EventType = "logged_in"
	EventLoggedOut           EventType = "logged_out"
	EventMemberRegistered    EventType = "member_registered"
	EventMemberStatusChanged EventType = "member_status_changed"
	EventDomainAdded         EventType = "domain_added"
	EventDomainRemoved       EventType = "domain_removed"
	EventAdminTxFailed       EventType = "admin_transaction_failed"
	EventReconcileOverride   EventType = "reconcile_override"
	EventReconcileDiverged   EventType = "reconcile_diverged"
	EventMarkedUnconfirmed   EventType = "registration_unconfirmed"
)

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so sinks can fan out. Secrets never go in here.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}
