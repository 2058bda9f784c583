package domain

import "time"

// PayMode selects what a completed pay session does.
type PayMode string

const (
	// PayModeDirect transfers immediately from the session owner to the target.
	PayModeDirect PayMode = "pay"
	// PayModeCharge creates a charge request the target has to approve.
	PayModeCharge PayMode = "charge"
)

// Valid reports whether m is a known mode.
func (m PayMode) Valid() bool {
	return m == PayModeDirect || m == PayModeCharge
}

// PayStep is the current step of a pay session.
type PayStep string

const (
	StepSelectingTarget  PayStep = "selecting_target"
	StepSelectingAmount  PayStep = "selecting_amount"
	StepConfirmingAmount PayStep = "confirming_amount"
)

// PaySession is a copy of one actor's interactive pay flow.
type PaySession struct {
	Owner     string    `json:"owner"`
	Mode      PayMode   `json:"mode"`
	Step      PayStep   `json:"step"`
	Target    string    `json:"target,omitempty"`
	Amount    *Amount   `json:"amount,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
	TouchedAt time.Time `json:"touched_at"`
}

// PayOutcome is what confirming a pay session produced. Exactly one of the fields
// is set, depending on the session mode.
type PayOutcome struct {
	Mode     PayMode         `json:"mode"`
	Transfer *TransferResult `json:"transfer,omitempty"`
	Request  *ChargeRequest  `json:"request,omitempty"`
}
