package model

import "github.com/ethereum/go-ethereum/common"

type EventType string

const (
	EventAddCollateralToken    EventType = "AddCollateralToken"
	EventUpdateCollateralToken EventType = "UpdateCollateralToken"
	EventRemoveCollateralToken EventType = "RemoveCollateralToken"
	EventOpenBuyOrder          EventType = "OpenBuyOrder"
	EventOpenSellOrder         EventType = "OpenSellOrder"
	EventClearBatch            EventType = "ClearBatch"
	EventClaimBuyOrder         EventType = "ClaimBuyOrder"
	EventClaimSellOrder        EventType = "ClaimSellOrder"
	EventAddTappedToken        EventType = "AddTappedToken"
	EventUpdateTappedToken     EventType = "UpdateTappedToken"
	EventResetTappedToken      EventType = "ResetTappedToken"
	EventRemoveTappedToken     EventType = "RemoveTappedToken"
	EventWithdraw              EventType = "Withdraw"
)

// Event is one journal entry for external observers and indexers. Fields holds
// the key attributes of the referenced entity (amounts, batch ids, parties) as
// strings so the journal survives schema drift.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Collateral common.Address    `json:"collateral"`
	Fields     map[string]string `json:"fields,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}
