package service

import "errors"

var (
	ErrNotFound       = errors.New("error not found")
	ErrEmptyPortfolio = errors.New("error portfolio has no holdings")
)
