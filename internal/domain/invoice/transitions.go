package invoice

import (
	"slices"

	"invoiceflow/internal/core/apperror"
)

// Action is a workflow operation.
type Action string

const (
	ActionSubmit              Action = "submit"
	ActionValidateProforma    Action = "validate"
	ActionApprove             Action = "approve"
	ActionMarkPaid            Action = "mark_paid"
	ActionMarkUnpaid          Action = "mark_unpaid"
	ActionRequestModification Action = "request_modification"
	ActionApproveModification Action = "approve_modification"
	ActionReject              Action = "reject"
	ActionCancel              Action = "cancel"
)

// rule describes where an action may start and where it leads.
type rule struct {
	from []Status
	// onlyType restricts the action to one invoice type; empty means any.
	onlyType Type
	// to is the target status; empty keeps the current one.
	to Status
	// anyStatus lets the action start from every status (guards still apply).
	anyStatus bool
}

var transitions = map[Action]rule{
	ActionSubmit:              {from: []Status{StatusDraft}, onlyType: TypeInvoice, to: StatusPending},
	ActionValidateProforma:    {from: []Status{StatusDraft}, onlyType: TypeProforma, to: StatusSent},
	ActionApprove:             {from: []Status{StatusPending}, to: StatusApproved},
	ActionMarkPaid:            {from: []Status{StatusApproved}, to: StatusPaid},
	ActionMarkUnpaid:          {from: []Status{StatusPaid, StatusApproved}, to: StatusApproved},
	ActionRequestModification: {from: []Status{StatusApproved, StatusPaid}},
	ActionApproveModification: {anyStatus: true, to: StatusPending},
	ActionReject:              {from: []Status{StatusPending}, to: StatusRejected},
	ActionCancel:              {from: []Status{StatusDraft, StatusPending}, to: StatusCancelled},
}

// AllowedFrom lists the statuses an action may start from.
func (a Action) AllowedFrom() []Status {
	r, ok := transitions[a]
	if !ok {
		return nil
	}
	if r.anyStatus {
		return []Status{StatusDraft, StatusPending, StatusApproved, StatusPaid, StatusSent, StatusCancelled, StatusRejected}
	}
	return slices.Clone(r.from)
}

// Target returns the status the invoice ends in after a.
func (a Action) Target(current Status) Status {
	if r, ok := transitions[a]; ok && r.to != "" {
		return r.to
	}
	return current
}

// CheckTransition validates the status part of an action. Guards that
// depend on items, stock or the actor are checked by the workflow.
func CheckTransition(inv *Invoice, a Action) error {
	r, ok := transitions[a]
	if !ok {
		return apperror.NewValidation("unknown action").WithDetail("action", string(a))
	}

	if r.onlyType != "" && inv.Type != r.onlyType {
		return apperror.NewInvalidTransition(string(a), string(inv.Status), nil).
			WithDetail("type", string(inv.Type)).
			WithDetail("required_type", string(r.onlyType))
	}

	if r.anyStatus || slices.Contains(r.from, inv.Status) {
		return nil
	}

	return apperror.NewInvalidTransition(string(a), string(inv.Status), statusStrings(r.from))
}

// AvailableActions lists the actions whose status rule admits the invoice.
// Used by the API to render buttons; guards may still refuse.
func AvailableActions(inv *Invoice) []Action {
	var out []Action
	for _, a := range []Action{
		ActionSubmit, ActionValidateProforma, ActionApprove, ActionMarkPaid, ActionMarkUnpaid,
		ActionRequestModification, ActionApproveModification, ActionReject, ActionCancel,
	} {
		if CheckTransition(inv, a) != nil {
			continue
		}
		switch a {
		case ActionMarkUnpaid:
			if !inv.IsStockDeducted() {
				continue
			}
		case ActionMarkPaid:
			if inv.IsStockDeducted() || inv.HasPendingModification() {
				continue
			}
		case ActionRequestModification:
			if inv.HasPendingModification() {
				continue
			}
		case ActionApproveModification:
			if !inv.HasPendingModification() {
				continue
			}
		case ActionReject, ActionCancel:
			if inv.IsStockDeducted() {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
