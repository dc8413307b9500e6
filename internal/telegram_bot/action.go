package telegram_bot

import (
	"fmt"
	"strconv"
	"strings"
)

type actionKind int

const (
	actionConfirm actionKind = iota
	actionDecline
	actionModApprove
	actionModDecline
	actionModBan
	actionModView
)

// action is a callback payload decoded once at the router boundary. The
// engine and handlers below never look at the raw string again.
type action struct {
	kind actionKind
	// userID is the requester the action targets. For the requester's own
	// confirm/decline buttons it is the sender; for moderator buttons it is
	// decoded from the payload.
	userID int64
	// moderator marks actions that require moderator rights.
	moderator bool
}

// parseAction decodes callback data. Requester buttons carry a bare verb;
// moderator buttons carry "verb:<user_id>".
func parseAction(data string, senderID int64) (action, error) {
	switch data {
	case "confirm":
		return action{kind: actionConfirm, userID: senderID}, nil
	case "decline":
		return action{kind: actionDecline, userID: senderID}, nil
	}

	name, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return action{}, fmt.Errorf("unknown callback payload %q", data)
	}

	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return action{}, fmt.Errorf("invalid user ID %q in callback payload: %w", idStr, err)
	}

	var kind actionKind
	switch name {
	case "approve":
		kind = actionModApprove
	case "decline":
		kind = actionModDecline
	case "ban":
		kind = actionModBan
	case "view":
		kind = actionModView
	default:
		return action{}, fmt.Errorf("unknown callback action %q", name)
	}

	return action{kind: kind, userID: userID, moderator: true}, nil
}
