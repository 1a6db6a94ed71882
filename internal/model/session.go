package model

type action int

const (
	DefaultAction action = iota
	ExpectingSaveName
	ExpectingNewPortfolioName
	ExpectingImportFile
)

type Session struct {
	Action action
}
