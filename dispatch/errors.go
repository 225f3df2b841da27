package dispatch

import "errors"

var (
	ErrIncompleteDraft = errors.New("dispatch: draft is missing required fields")
	ErrNoDraft         = errors.New("dispatch: no pending draft for sender")
	ErrTaskNotFound    = errors.New("dispatch: task not found")
	ErrAlreadyResolved = errors.New("dispatch: task is already resolved")
	ErrAlreadyOpen     = errors.New("dispatch: task is already open")
	ErrNoOp            = errors.New("dispatch: task already in requested state")
	ErrUnauthorized    = errors.New("dispatch: participant is not allowed to perform this action")
)
