package chain

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from cosmos.tx.v1beta1.
const (
	txRawBodyBytesField protowire.Number = 1
	txBodyMemoField     protowire.Number = 2
)

// Memo decodes the memo from the TxRaw bytes. A transaction without a memo
// yields "".
func (t RawTransaction) Memo() (string, error) {
	body, _, err := bytesField(t.Tx, txRawBodyBytesField)
	if err != nil {
		return "", fmt.Errorf("decode tx raw: %w", err)
	}
	memo, _, err := bytesField(body, txBodyMemoField)
	if err != nil {
		return "", fmt.Errorf("decode tx body: %w", err)
	}
	return string(memo), nil
}

// bytesField returns the last length-delimited value stored under num,
// matching protobuf's last-one-wins rule for singular fields.
func bytesField(b []byte, num protowire.Number) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	for len(b) > 0 {
		n, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return nil, false, protowire.ParseError(l)
		}
		b = b[l:]

		if n == num && typ == protowire.BytesType {
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return nil, false, protowire.ParseError(l)
			}
			value, found = v, true
			b = b[l:]
			continue
		}

		l = protowire.ConsumeFieldValue(n, typ, b)
		if l < 0 {
			return nil, false, protowire.ParseError(l)
		}
		b = b[l:]
	}
	return value, found, nil
}
