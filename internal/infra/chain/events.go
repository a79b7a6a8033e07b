package chain

import (
	"encoding/json"
	"strings"

	"github.com/vietddude/chain-observer/internal/core/domain"
)

type messageLog struct {
	MsgIndex int               `json:"msg_index"`
	Events   []domain.RawEvent `json:"events"`
}

// Events returns the transaction's events in log order. The JSON raw log is
// preferred; when it is absent or not JSON the tx_result events are used.
func (t RawTransaction) Events() []domain.RawEvent {
	raw := strings.TrimSpace(t.RawLog)
	if strings.HasPrefix(raw, "[") {
		var logs []messageLog
		if err := json.Unmarshal([]byte(raw), &logs); err == nil {
			var events []domain.RawEvent
			for _, l := range logs {
				events = append(events, l.Events...)
			}
			return events
		}
	}
	return t.ResultEvents
}
