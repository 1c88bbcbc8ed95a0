package models

import "github.com/ethereum/go-ethereum/common"

type EventType string

const (
	EventGameStarted                EventType = "GameStarted"
	EventGameCompleted              EventType = "GameCompleted"
	EventRewardClaimed              EventType = "RewardClaimed"
	EventRewardClaimedWithSignature EventType = "RewardClaimedWithSignature"
	EventTransfer                   EventType = "Transfer"
	EventApproval                   EventType = "Approval"
	EventOwnerAdded                 EventType = "OwnerAdded"
	EventOwnerRemoved               EventType = "OwnerRemoved"
	EventSignerAdded                EventType = "SignerAdded"
	EventSignerRemoved              EventType = "SignerRemoved"
	EventMinterAdded                EventType = "MinterAdded"
	EventMinterRemoved              EventType = "MinterRemoved"
	EventPaused                     EventType = "Paused"
	EventUnpaused                   EventType = "Unpaused"
	EventDailyRewardLimitUpdated    EventType = "DailyRewardLimitUpdated"
	EventServerSignerUpdated        EventType = "ServerSignerUpdated"
	EventSignerPolicyUpdated        EventType = "SignerPolicyUpdated"
	EventPrivilegedCallerUpdated    EventType = "PrivilegedCallerUpdated"
	EventFeesWithdrawn              EventType = "FeesWithdrawn"
	EventFeesBurned                 EventType = "FeesBurned"
)

// Event is an auditable record emitted by a committed operation. Player is the
// principal the event concerns, used for routing to per-player streams.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Contract  common.Address `json:"contract"`
	Player    common.Address `json:"player,omitempty"`
	GameID    uint64         `json:"game_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func (e *Event) Concerns(addr common.Address) bool {
	if e.Player == addr {
		return true
	}
	for _, key := range []string{"from", "to", "account"} {
		if v, ok := e.Data[key].(common.Address); ok && v == addr {
			return true
		}
	}
	return false
}
