package tracker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/events"
	"github.com/nearbridge/fastbridge-relayer/internal/store/storetest"
)

// fakeBlockSource emits a fixed slice of blocks then closes, recording
// the fromHeight it was asked to start at so tests can assert restart
// behavior after a disconnect.
type fakeBlockSource struct {
	blocks     []chain.Block
	failAfter  int
	startCalls []uint64
}

func (f *fakeBlockSource) Blocks(ctx context.Context, contractID string, fromHeight uint64) (<-chan chain.Block, <-chan error) {
	f.startCalls = append(f.startCalls, fromHeight)
	blocksCh := make(chan chain.Block)
	errsCh := make(chan error, 1)

	go func() {
		defer close(blocksCh)
		for i, b := range f.blocks {
			if b.Height < fromHeight {
				continue
			}
			if f.failAfter > 0 && i == f.failAfter {
				errsCh <- context.DeadlineExceeded
				return
			}
			select {
			case blocksCh <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	return blocksCh, errsCh
}

func initTransferLog(t *testing.T, nonce string) string {
	t.Helper()
	intent := events.TransferIntent{
		Nonce:    nonce,
		SenderID: "alice.near",
		TransferMessage: events.TransferMessage{
			ValidTill: 1000,
			Transfer:  events.EthTransfer{TokenEth: "0xabc0000000000000000000000000000000000a", Amount: "1000000"},
			Fee:       events.FeeTransfer{Token: "usdt.near", Amount: "1000"},
			Recipient: "0xabc0000000000000000000000000000000000a",
		},
	}
	data, err := json.Marshal(intent)
	require.NoError(t, err)
	env := struct {
		Standard string          `json:"standard"`
		Version  string          `json:"version"`
		Event    string          `json:"event"`
		Data     json.RawMessage `json:"data"`
	}{
		Standard: "nep297",
		Version:  "1.0.0",
		Event:    events.EventInitTransfer,
		Data:     data,
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return "EVENT_JSON:" + string(b)
}

func TestTrackerPersistsEventsAndAdvancesCheckpoint(t *testing.T) {
	s := storetest.New()
	src := &fakeBlockSource{
		blocks: []chain.Block{
			{Height: 10, Logs: []string{initTransferLog(t, "1"), "some unrelated log line"}},
			{Height: 11, Logs: []string{initTransferLog(t, "2")}},
		},
	}

	tr := New("bridge.near", 0, s, src, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		v, ok, err := s.Get(ctx, "options:START_BLOCK")
		return err == nil && ok && v == "12"
	}, time.Second, 10*time.Millisecond)

	all, err := s.HGetAll(ctx, "new_events")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Contains(t, all, "1")
	require.Contains(t, all, "2")

	cancel()
	<-done
}

func TestTrackerRestartsFromCheckpointAfterDisconnect(t *testing.T) {
	s := storetest.New()
	src := &fakeBlockSource{
		blocks: []chain.Block{
			{Height: 5, Logs: []string{initTransferLog(t, "a")}},
			{Height: 6, Logs: nil},
		},
		failAfter: 1,
	}

	tr := New("bridge.near", 0, s, src, time.Millisecond)
	tr.reconnectGap = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		return len(src.startCalls) >= 2
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, uint64(0), src.startCalls[0])
	require.Equal(t, uint64(6), src.startCalls[1])
}
