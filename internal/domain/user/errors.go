package user

import "errors"

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailAlreadyExists      = errors.New("email already exists")
	ErrUnknownRole             = errors.New("unknown role")
	ErrAccountNotValidated     = errors.New("account has not been validated by an administrator")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)
