package demo

var (
	Names    = names
	ByAmount = byAmount
)
