package repository

import "errors"

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicate         = errors.New("duplicate resource")
	ErrInvalidInput      = errors.New("invalid input data")
	ErrNotEnough         = errors.New("not enough quantity available")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInUse             = errors.New("resource is still referenced")
)
