package classify

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fundsMemo is the memo the payment flow attaches to a funds transfer.
type fundsMemo struct {
	RecipientAddress string `json:"recipientAddress"`
	UUID             string `json:"uuid"`
	EthTxHash        string `json:"ethTxhash"`
}

// presaleUUID marks presale payments, which are not on-demand mints.
const presaleUUID = "presale"

var txHashPattern = regexp.MustCompile(`^[0-9A-Fa-f]{64}$`)

func parseFundsMemo(memo string) (fundsMemo, bool) {
	var m fundsMemo
	if err := json.Unmarshal([]byte(memo), &m); err != nil {
		return fundsMemo{}, false
	}
	return m, true
}

// parseTxHashMemo returns the referenced tx hash in canonical upper case.
func parseTxHashMemo(memo string) (string, bool) {
	memo = strings.TrimSpace(memo)
	if !txHashPattern.MatchString(memo) {
		return "", false
	}
	return strings.ToUpper(memo), true
}
