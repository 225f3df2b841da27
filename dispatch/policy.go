package dispatch

import "fmt"

// Action is a privileged state transition requested from a task's discussion
// thread. Participant responses are not Actions; they are always allowed for
// receivers.
type Action string

const (
	ActionTake    Action = "take"
	ActionResolve Action = "resolve"
	ActionReopen  Action = "reopen"
)

func (a Action) Valid() bool {
	switch a {
	case ActionTake, ActionResolve, ActionReopen:
		return true
	}
	return false
}

// AuthorizePolicy decides whether a participant may perform a thread action.
// The product flip-flopped between "anyone", "any receiver" and "admins only",
// so the policy is injected rather than hard-coded.
type AuthorizePolicy func(participantID int64, action Action) bool

func PolicyAnyone() AuthorizePolicy {
	return func(int64, Action) bool { return true }
}

func PolicyReceivers(receiverIDs []int64) AuthorizePolicy {
	allowed := make(map[int64]struct{}, len(receiverIDs))
	for _, id := range receiverIDs {
		allowed[id] = struct{}{}
	}
	return func(participantID int64, _ Action) bool {
		_, ok := allowed[participantID]
		return ok
	}
}

// PolicyAdmins defers to the venue: isAdmin is typically backed by a chat
// member lookup and should return false on lookup failure.
func PolicyAdmins(isAdmin func(participantID int64) bool) AuthorizePolicy {
	return func(participantID int64, _ Action) bool {
		if isAdmin == nil {
			return false
		}
		return isAdmin(participantID)
	}
}

// PolicyFromName builds the configured policy. Valid names: anyone, receivers,
// admins.
func PolicyFromName(name string, receiverIDs []int64, isAdmin func(int64) bool) (AuthorizePolicy, error) {
	switch name {
	case "", "anyone":
		return PolicyAnyone(), nil
	case "receivers":
		return PolicyReceivers(receiverIDs), nil
	case "admins":
		return PolicyAdmins(isAdmin), nil
	default:
		return nil, fmt.Errorf("unknown authorize policy: %s", name)
	}
}
