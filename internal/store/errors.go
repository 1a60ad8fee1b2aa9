package store

import "errors"

var (
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrNotYourTicket      = errors.New("ticket claimed by another station")
	ErrInvalidStage       = errors.New("invalid stage")
	ErrInvalidStatus      = errors.New("invalid ticket status")
	ErrStationBusy        = errors.New("station already serving a ticket")
	ErrAlreadyReserved    = errors.New("ticket already reserved")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")

	// ErrSerialization marks a transaction the database aborted to keep
	// serializable histories; the operation is safe to re-run.
	ErrSerialization = errors.New("serialization conflict")
)
