package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PendingKind identifies the single in-flight selection of a session.
type PendingKind string

// Session pending kinds.
const (
	PendingNone  PendingKind = ""
	PendingClose PendingKind = "close"
	PendingEdit  PendingKind = "edit"
)

// SessionState is the explicit, process-local workflow state. It is a
// plain value threaded through every controller call and returned
// updated; nothing about it is persisted or ambient. The zero value is
// the idle state.
//
// Invariant: at most one of close/edit is pending at any time.
// Entering one pending state clears the other (last request wins).
type SessionState struct {
	Kind     PendingKind
	TargetID int
}

// Idle reports whether no selection is pending.
func (s SessionState) Idle() bool {
	return s.Kind == PendingNone
}

// User identifies the acting operator for role gating and audit
// attribution. A zero Name with an admin role is the implicit
// single-operator mode used when no user table is configured.
type User struct {
	Name string
	Role string
}

// CanWrite reports whether the role may submit, edit, or close
// records. Plain users are read-only; editors and admins write.
func CanWrite(role string) bool {
	return role == RoleAdmin || role == RoleEditor
}

// CanViewLog reports whether the role may view the audit log.
func CanViewLog(role string) bool {
	return role == RoleAdmin
}

// SubmitInput carries the fields of a new record.
type SubmitInput struct {
	Topic                string
	Owner                string
	Status               string
	TargetResolutionDate string
}

// CloseInput carries the fields applied on confirm-close. Both may be
// empty.
type CloseInput struct {
	Comment  string
	ClosedBy string
}

// EditInput carries the four editable fields applied on save-changes.
type EditInput struct {
	Topic                string
	Owner                string
	Status               string
	TargetResolutionDate string
}

// Controller mediates which single record is under edit or close and
// applies validated mutations through the store. Every mutation runs
// one full load-mutate-save cycle against a freshly loaded table,
// held together by the store's advisory file lock.
type Controller struct {
	Store *Store

	// Audit, when set, receives one event per changed tracked field
	// after a successful edit.
	Audit *AuditLog

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

// RequestClose moves the session to ClosePending on the given record,
// clearing any pending edit. The target is only resolved at confirm
// time, so a stale ID is accepted here and rejected later.
func (c *Controller) RequestClose(actor User, state SessionState, id int) (SessionState, error) {
	if !CanWrite(actor.Role) {
		return state, ErrWriteNotAllowed
	}

	return SessionState{Kind: PendingClose, TargetID: id}, nil
}

// RequestEdit moves the session to EditPending on the given record,
// clearing any pending close.
func (c *Controller) RequestEdit(actor User, state SessionState, id int) (SessionState, error) {
	if !CanWrite(actor.Role) {
		return state, ErrWriteNotAllowed
	}

	return SessionState{Kind: PendingEdit, TargetID: id}, nil
}

// Cancel abandons any pending selection.
func (c *Controller) Cancel(SessionState) SessionState {
	return SessionState{}
}

// Submit validates and appends a new record. Topic must be non-empty;
// owner and status are free text; a malformed target date is replaced
// with today rather than rejected. Closing fields start empty.
func (c *Controller) Submit(actor User, in SubmitInput) (Record, error) {
	if !CanWrite(actor.Role) {
		return Record{}, ErrWriteNotAllowed
	}

	if strings.TrimSpace(in.Topic) == "" {
		return Record{}, ErrTopicRequired
	}

	rec := Record{
		Topic:                in.Topic,
		Owner:                in.Owner,
		Status:               in.Status,
		TargetResolutionDate: NormalizeDate(in.TargetResolutionDate, c.now),
	}

	return c.Store.Append(rec)
}

// ConfirmClose applies the pending close: status becomes "Closed", the
// closing comment and closer are recorded, and the actual resolution
// date is set to today. The whole load-mutate-save cycle runs under
// the store's file lock. A target that can no longer be located in the
// freshly loaded table surfaces as ErrRecordNotFound and resets the
// session to idle; a persistence failure leaves the selection pending
// so the operator can retry.
func (c *Controller) ConfirmClose(actor User, state SessionState, in CloseInput) (SessionState, error) {
	if !CanWrite(actor.Role) {
		return state, ErrWriteNotAllowed
	}

	if state.Kind != PendingClose {
		return state, ErrNoPendingClose
	}

	updateErr := c.Store.Update(func(records []Record) ([]Record, error) {
		idx := FindByID(records, state.TargetID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: id %d", ErrRecordNotFound, state.TargetID)
		}

		records[idx].Status = StatusClosed
		records[idx].ClosingComment = in.Comment
		records[idx].ClosedBy = in.ClosedBy
		records[idx].ActualResolutionDate = c.now().Format(DateLayout)

		return records, nil
	})
	if updateErr != nil {
		if errors.Is(updateErr, ErrRecordNotFound) {
			// The selection no longer denotes a record; drop it.
			return SessionState{}, updateErr
		}

		// Persistence failed; keep the selection for a retry.
		return state, updateErr
	}

	return SessionState{}, nil
}

// trackedFields are the editable fields recorded in the audit log.
var trackedFields = []string{"Topic", "Owner", "Status", "Target Resolution Date"}

// SaveEdit applies the pending edit: the four editable fields are
// overwritten in place and the closing fields are left untouched. A
// malformed date is replaced with today. The whole load-mutate-save
// cycle runs under the store's file lock. After a successful save, one
// audit event is emitted per changed tracked field.
func (c *Controller) SaveEdit(actor User, state SessionState, in EditInput) (SessionState, error) {
	if !CanWrite(actor.Role) {
		return state, ErrWriteNotAllowed
	}

	if state.Kind != PendingEdit {
		return state, ErrNoPendingEdit
	}

	var before, after Record

	updateErr := c.Store.Update(func(records []Record) ([]Record, error) {
		idx := FindByID(records, state.TargetID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: id %d", ErrRecordNotFound, state.TargetID)
		}

		before = records[idx]

		records[idx].Topic = in.Topic
		records[idx].Owner = in.Owner
		records[idx].Status = in.Status
		records[idx].TargetResolutionDate = NormalizeDate(in.TargetResolutionDate, c.now)

		after = records[idx]

		return records, nil
	})
	if updateErr != nil {
		if errors.Is(updateErr, ErrRecordNotFound) {
			return SessionState{}, updateErr
		}

		return state, updateErr
	}

	auditErr := c.emitEditEvents(actor, before, after)
	if auditErr != nil {
		return SessionState{}, auditErr
	}

	return SessionState{}, nil
}

func (c *Controller) emitEditEvents(actor User, before, after Record) error {
	if c.Audit == nil {
		return nil
	}

	beforeValues := before.exportRow()
	afterValues := after.exportRow()

	for fieldIdx, field := range trackedFields {
		if beforeValues[fieldIdx] == afterValues[fieldIdx] {
			continue
		}

		err := c.Audit.Append(AuditEvent{
			Time:   c.now(),
			Editor: actor.Name,
			Field:  field,
			Before: beforeValues[fieldIdx],
			After:  afterValues[fieldIdx],
		})
		if err != nil {
			return err
		}
	}

	return nil
}
