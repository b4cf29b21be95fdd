package models

// AccountKind selects which balance a transfer touches: a player's own
// money, the state account a Politician controls, or the bank account a
// Banker controls.
type AccountKind int

const (
	AccountPersonal AccountKind = iota + 1
	AccountState
	AccountBank
)

func (k AccountKind) String() string {
	switch k {
	case AccountPersonal:
		return "personal"
	case AccountState:
		return "state"
	case AccountBank:
		return "bank"
	}
	return "unknown"
}

// AccountRef names one concrete balance inside a game. PlayerID is only
// meaningful for personal accounts.
type AccountRef struct {
	Kind     AccountKind
	PlayerID int64
}

// TransferOp is one atomic movement of funds between two accounts of the
// same game. Either both balances change or neither does.
type TransferOp struct {
	GameID string
	Debit  AccountRef
	Credit AccountRef
	Amount int64
	Ref    string // transaction reference for the audit log
}
