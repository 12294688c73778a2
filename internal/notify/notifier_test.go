package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chainScope/internal/model"
)

func TestPublishOrderPreserved(t *testing.T) {
	n := New(zap.NewNop())
	sub := n.Subscribe("ws", 8)

	block := &model.Block{BlockHeight: 5}
	tx0 := &model.Tx{TxIndex: 0, BlockHeight: 5}
	tx1 := &model.Tx{TxIndex: 1, BlockHeight: 5}

	n.PublishBlock(block)
	n.PublishTx(tx0)
	n.PublishTx(tx1)

	u := <-sub.Updates()
	require.Equal(t, BlockUpdate, u.Kind)
	require.Equal(t, uint64(5), u.Block.BlockHeight)

	u = <-sub.Updates()
	require.Equal(t, TxUpdate, u.Kind)
	require.Equal(t, uint32(0), u.Tx.TxIndex)

	u = <-sub.Updates()
	require.Equal(t, uint32(1), u.Tx.TxIndex)
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	n := New(zap.NewNop())
	sub := n.Subscribe("slow", 2)

	for i := 0; i < 5; i++ {
		n.PublishBlock(&model.Block{BlockHeight: uint64(i)})
	}

	require.Equal(t, uint64(3), sub.Dropped())

	u := <-sub.Updates()
	require.Equal(t, uint64(0), u.Block.BlockHeight)
	u = <-sub.Updates()
	require.Equal(t, uint64(1), u.Block.BlockHeight)
}

func TestSubscribersAreIsolated(t *testing.T) {
	n := New(zap.NewNop())
	full := n.Subscribe("full", 1)
	healthy := n.Subscribe("healthy", 8)

	n.PublishBlock(&model.Block{BlockHeight: 1})
	n.PublishBlock(&model.Block{BlockHeight: 2})

	require.Equal(t, uint64(1), full.Dropped())
	require.Equal(t, uint64(0), healthy.Dropped())

	u := <-healthy.Updates()
	require.Equal(t, uint64(1), u.Block.BlockHeight)
	u = <-healthy.Updates()
	require.Equal(t, uint64(2), u.Block.BlockHeight)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := New(zap.NewNop())
	sub := n.Subscribe("ws", 1)
	n.Unsubscribe("ws")

	_, open := <-sub.Updates()
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	n.PublishBlock(&model.Block{BlockHeight: 1})
}

func TestCloseStopsPublishing(t *testing.T) {
	n := New(zap.NewNop())
	sub := n.Subscribe("ws", 4)

	n.Close()
	n.PublishBlock(&model.Block{BlockHeight: 1})

	_, open := <-sub.Updates()
	require.False(t, open)

	late := n.Subscribe("late", 1)
	_, open = <-late.Updates()
	require.False(t, open)
}
