package unlock

import (
	"encoding/json"

	"github.com/nearbridge/fastbridge-relayer/internal/events"
)

func unmarshalCompleted(raw string, out *events.CompletedTransaction) error {
	return json.Unmarshal([]byte(raw), out)
}
