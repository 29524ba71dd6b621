package auth

import "strings"

// Action is an operation an actor asks to perform.
type Action string

const (
	ActionView              Action = "view"
	ActionVote              Action = "vote"
	ActionCreate            Action = "create"
	ActionEdit              Action = "edit"
	ActionDelete            Action = "delete"
	ActionModeratePoll      Action = "moderate-poll"
	ActionModerateComment   Action = "moderate-comment"
	ActionManageIdentities  Action = "manage-identities"
	ActionSuspendIdentities Action = "suspend-identities"
	ActionViewAnalytics     Action = "view-analytics"
)

// Denial reasons.
const (
	ReasonUnauthenticated   = "inactive-or-unauthenticated"
	ReasonMissingPermission = "missing-permission"
	ReasonNotOwner          = "not-owner"
	ReasonSelfModeration    = "self-moderation"
	ReasonUnknownAction     = "unknown-action"
)

// ParseAction maps a wire name onto a known action.
func ParseAction(raw string) (Action, bool) {
	a := Action(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := simpleActions[a]; ok {
		return a, true
	}
	if _, ok := ownedActions[a]; ok {
		return a, true
	}
	return "", false
}

func (a Action) describe() string {
	switch a {
	case ActionModeratePoll, ActionModerateComment:
		return "moderate this item"
	case ActionEdit:
		return "edit this item"
	case ActionDelete:
		return "delete this item"
	case ActionManageIdentities:
		return "manage users"
	case ActionSuspendIdentities:
		return "suspend users"
	case ActionViewAnalytics:
		return "view analytics"
	case "":
		return "do this"
	default:
		return string(a)
	}
}

// ownerless actions need exactly one permission.
var simpleActions = map[Action]Permission{
	ActionView:              PermView,
	ActionVote:              PermVote,
	ActionCreate:            PermCreateResource,
	ActionModeratePoll:      PermModeratePolls,
	ActionModerateComment:   PermModerateComments,
	ActionManageIdentities:  PermManageIdentities,
	ActionSuspendIdentities: PermSuspendIdentities,
	ActionViewAnalytics:     PermViewAnalytics,
}

type ownedRule struct {
	own Permission
	any Permission
}

var ownedActions = map[Action]ownedRule{
	ActionEdit:   {own: PermEditOwnResource, any: PermDeleteAnyResource},
	ActionDelete: {own: PermDeleteOwnResource, any: PermDeleteAnyResource},
}

// Resource is the ownership fact an owned action is checked against.
type Resource struct {
	ID      string
	Kind    string
	OwnerID string
}

// Decision is the result of Authorize. A denial is an expected value, not an
// error; use Err when a call site has to surface it as one.
type Decision struct {
	Action  Action
	Allowed bool
	Reason  string
}

func allow(a Action) Decision { return Decision{Action: a, Allowed: true} }

func deny(a Action, reason string) Decision {
	return Decision{Action: a, Reason: reason}
}

// Deny builds a negative decision for checks made outside Authorize.
func Deny(a Action, reason string) Decision { return deny(a, reason) }

// Err returns nil for an allow and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: d.Action, Reason: d.Reason}
}

// Authorize decides whether actor may perform action on res. It performs no
// I/O: the caller resolves the profile and the resource beforehand. A nil
// actor is an anonymous caller. res may be nil for ownerless actions.
func Authorize(actor *Profile, action Action, res *Resource) Decision {
	if actor == nil || !actor.IsActive || !actor.Consistent() {
		return deny(action, ReasonUnauthenticated)
	}
	perms := EffectivePermissions(actor)

	if required, ok := simpleActions[action]; ok {
		if !perms.Has(required) {
			return deny(action, ReasonMissingPermission)
		}
		return allow(action)
	}

	rule, ok := ownedActions[action]
	if !ok {
		return deny(action, ReasonUnknownAction)
	}
	if perms.Has(rule.any) {
		return allow(action)
	}
	if res != nil && res.OwnerID != "" && res.OwnerID == actor.IdentityID && perms.Has(rule.own) {
		return allow(action)
	}
	return deny(action, ReasonNotOwner)
}
