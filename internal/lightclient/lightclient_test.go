package lightclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeViewer struct {
	height uint64
	err    error
}

func (f *fakeViewer) LastBlockNumber(ctx context.Context, contractID string) (uint64, error) {
	return f.height, f.err
}

func TestTrackerUpdatesHeight(t *testing.T) {
	viewer := &fakeViewer{height: 12345}
	tr := New(viewer, "client.near", time.Millisecond)

	tr.pollOnce(context.Background())

	require.Equal(t, uint64(12345), tr.Height())
}

func TestTrackerKeepsLastHeightOnError(t *testing.T) {
	viewer := &fakeViewer{height: 500}
	tr := New(viewer, "client.near", time.Millisecond)
	tr.pollOnce(context.Background())
	require.Equal(t, uint64(500), tr.Height())

	viewer.err = errors.New("rpc down")
	tr.pollOnce(context.Background())
	require.Equal(t, uint64(500), tr.Height())
}
