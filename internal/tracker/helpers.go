package tracker

import (
	"encoding/json"
	"strconv"

	"github.com/nearbridge/fastbridge-relayer/internal/events"
)

func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func formatUint64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func marshalIntent(intent *events.TransferIntent) (string, error) {
	b, err := json.Marshal(intent)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
