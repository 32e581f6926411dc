package marketplace

import (
	"errors"

	"github.com/chachabrian/evvalet-backend/internal/storage"
)

var (
	ErrInvalidRequestState = errors.New("request is not in a state that allows this operation")
	ErrInvalidOfferState   = errors.New("offer is not in a state that allows this operation")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrAlreadyResolved     = errors.New("negotiation entry already resolved")
	ErrRidePending         = errors.New("ride has not completed")
	ErrInvalidInput        = errors.New("invalid input")

	ErrNotFound               = storage.ErrNotFound
	ErrConcurrentModification = storage.ErrConcurrentModification
)
