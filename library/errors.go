package library

import (
	"errors"
	"fmt"
)

// Callers should match these with errors.Is. The refined errors wrap the
// category they belong to, so errors.Is(err, ErrDuplicateKey) holds for
// ErrDuplicateISBN as well.
var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateKey           = errors.New("duplicate key")
	ErrInvalidState           = errors.New("invalid state")
	ErrProtectedAccount       = errors.New("protected account")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrDuplicateISBN        = fmt.Errorf("%w: isbn already exists", ErrDuplicateKey)
	ErrDuplicateTitleAuthor = fmt.Errorf("%w: title and author already exist", ErrDuplicateKey)
	ErrDuplicateUsername    = fmt.Errorf("%w: username already exists", ErrDuplicateKey)

	ErrAlreadyCheckedOut = fmt.Errorf("%w: book already checked out", ErrInvalidState)
	ErrNotCheckedOut     = fmt.Errorf("%w: book is not checked out", ErrInvalidState)
	ErrNoBorrower        = fmt.Errorf("%w: borrower username is empty", ErrInvalidState)

	ErrAuthenticationFailed = fmt.Errorf("%w: invalid username or password", ErrNotFound)
)
