package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordsCallsInOrder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	launch := r.StartLaunch(ctx, StartLaunchRQ{Name: "launch", StartTime: time.Now()})
	suite := r.StartItem(ctx, launch, nil, StartItemRQ{Name: "suite", Type: ItemTypeSuite})
	step := r.StartItem(ctx, launch, suite, StartItemRQ{Name: "step", Type: ItemTypeStep})
	r.EmitLog(ctx, launch, step, LogRQ{Level: LogLevelError, Message: "trace"})
	require.NoError(t, r.FinishItem(ctx, launch, step, FinishItemRQ{Status: StatusFailed}).Wait(ctx))
	require.NoError(t, r.FinishItem(ctx, launch, suite, FinishItemRQ{Status: StatusFailed}).Wait(ctx))
	require.NoError(t, r.FinishLaunch(ctx, launch, FinishLaunchRQ{}).Wait(ctx))

	calls := r.Calls()
	require.Len(t, calls, 7)

	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	assert.Equal(t, []string{
		OpStartLaunch, OpStartItem, OpStartItem, OpEmitLog, OpFinishItem, OpFinishItem, OpFinishLaunch,
	}, ops)

	suiteID, _ := suite.ID()
	assert.Equal(t, suiteID, calls[2].ParentID, "step must be started under the suite")
	assert.Equal(t, "step", calls[3].Name, "log call resolves the item name")
	assert.Equal(t, "step", calls[4].Name)
	assert.Equal(t, StatusFailed, calls[4].Status)
}

func TestRecorder_CountAndFind(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()
	launch := r.StartLaunch(ctx, StartLaunchRQ{Name: "l"})
	r.StartItem(ctx, launch, nil, StartItemRQ{Name: "a", Type: ItemTypeStep})
	r.StartItem(ctx, launch, nil, StartItemRQ{Name: "b", Type: ItemTypeStep})

	assert.Equal(t, 2, r.Count(OpStartItem))
	call, ok := r.Find(OpStartItem, "b")
	require.True(t, ok)
	assert.Equal(t, ItemTypeStep, call.Type)

	_, ok = r.Find(OpFinishItem, "b")
	assert.False(t, ok)

	r.Reset()
	assert.Empty(t, r.Calls())
}
