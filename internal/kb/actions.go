package kb

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ActionType enumerates what the consistency agent may do to the knowledge
// base.
type ActionType string

const (
	ActionInsert ActionType = "INSERT"
	ActionDelete ActionType = "DELETE"
	ActionUpdate ActionType = "UPDATE"
)

// ContentUnchanged is the sentinel an UPDATE action carries when only the
// memo's place in the knowledge base changes, not its content.
const ContentUnchanged = "provided_content_unchanged"

// ErrInvalidPlan marks an action plan that violates the agent contract.
var ErrInvalidPlan = errors.New("invalid action plan")

// Action is one validated knowledge base mutation.
type Action struct {
	Type           ActionType
	MemoID         uuid.UUID
	Reason         string
	UpdatedContent string // UPDATE only; ContentUnchanged keeps existing content
}

// rawPlan is the model's structured output before validation.
type rawPlan struct {
	Actions []rawAction `json:"actions"`
}

type rawAction struct {
	Action         string `json:"action"`
	MemoUUID       string `json:"memo_uuid"`
	Reason         string `json:"reason"`
	UpdatedContent string `json:"updated_content,omitempty"`
}

// validatePlan converts a raw plan into actions, enforcing:
//   - every action type is known
//   - every memo_uuid parses
//   - at most one INSERT, and it must reference the incoming memo
//   - DELETE and UPDATE must not reference the incoming memo
func validatePlan(raw rawPlan, incomingID uuid.UUID) ([]Action, error) {
	var actions []Action
	insertSeen := false

	for i, ra := range raw.Actions {
		id, err := uuid.Parse(ra.MemoUUID)
		if err != nil {
			return nil, fmt.Errorf("%w: action %d has invalid memo_uuid %q", ErrInvalidPlan, i, ra.MemoUUID)
		}

		switch ActionType(ra.Action) {
		case ActionInsert:
			if insertSeen {
				return nil, fmt.Errorf("%w: multiple INSERT actions", ErrInvalidPlan)
			}
			if id != incomingID {
				return nil, fmt.Errorf("%w: INSERT references %s, not the incoming memo", ErrInvalidPlan, id)
			}
			insertSeen = true
		case ActionDelete, ActionUpdate:
			if id == incomingID {
				return nil, fmt.Errorf("%w: %s references the incoming memo", ErrInvalidPlan, ra.Action)
			}
		default:
			return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidPlan, ra.Action)
		}

		actions = append(actions, Action{
			Type:           ActionType(ra.Action),
			MemoID:         id,
			Reason:         ra.Reason,
			UpdatedContent: ra.UpdatedContent,
		})
	}
	return actions, nil
}
