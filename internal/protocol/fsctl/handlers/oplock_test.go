package handlers

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
	"github.com/marmos91/ufsd/internal/volume"
)

// ============================================================================
// Test fakes
// ============================================================================

type fakeDevice struct {
	name    string
	session uint32
}

func (d *fakeDevice) DeviceName() string { return d.name }
func (d *fakeDevice) SessionID() uint32  { return d.session }

type fakeLockTable struct {
	blocks bool
}

func (t *fakeLockTable) BlocksOplockRequest() bool { return t.blocks }

// fakeEngine records the delegation the arbitrator performs.
type fakeEngine struct {
	mu     sync.Mutex
	status types.Status

	calls      int
	lastOplock *volume.Oplock
	lastReq    *OplockRequest
	lastCount  uint32
}

func (e *fakeEngine) Fsctrl(oplock *volume.Oplock, req *OplockRequest, oplockCount uint32) types.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastOplock = oplock
	e.lastReq = req
	e.lastCount = oplockCount
	return e.status
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeNotify struct {
	mu       sync.Mutex
	status   types.Status
	reports  []reportedChange
	cleanups int
}

type reportedChange struct {
	path   string
	filter uint32
	action uint32
}

func (n *fakeNotify) ReportChange(path string, filter, action uint32) types.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, reportedChange{path, filter, action})
	return n.status
}

func (n *fakeNotify) CleanupAllWaiters() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleanups++
}

// testVolume builds a volume with one open handle on a node.
func testVolume(t *testing.T, name string, isDirectory bool, opts volume.Params) (*volume.Volume, *volume.Node, *volume.HandleContext) {
	t.Helper()
	if opts.Device == nil {
		opts.Device = &fakeDevice{name: `\Device\Test`}
	}
	if opts.Notify == nil {
		opts.Notify = &fakeNotify{}
	}
	vol := volume.New(opts)
	node := vol.AllocateNode(name, isDirectory, &fakeLockTable{})
	hc := node.NewHandle()
	return vol, node, hc
}

func testContext() *ControlContext {
	return NewControlContext(context.Background(), 1, 42)
}

func genericOplockInput(level, flags uint32) []byte {
	buf := make([]byte, OplockInputBufferSize)
	binary.LittleEndian.PutUint16(buf[0:2], 1)
	binary.LittleEndian.PutUint16(buf[2:4], OplockInputBufferSize)
	binary.LittleEndian.PutUint32(buf[4:8], level)
	binary.LittleEndian.PutUint32(buf[8:12], flags)
	return buf
}

// assertLocksReleased fails the test when the volume or node lock is
// still held after arbitration returns.
func assertLocksReleased(t *testing.T, vol *volume.Volume, node *volume.Node) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		vol.Lock()
		vol.Unlock()
		node.Lock()
		node.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("volume or node lock still held after arbitration")
	}
}

// ============================================================================
// Oplock arbitration
// ============================================================================

func TestRequestOplock_DirectoryRejectsNonShared(t *testing.T) {
	cases := []struct {
		name  string
		code  types.ControlCode
		input []byte
	}{
		{"level 1", types.FSCTLRequestOplockLevel1, nil},
		{"batch", types.FSCTLRequestBatchOplock, nil},
		{"filter", types.FSCTLRequestFilterOplock, nil},
		{"generic write caching", types.FSCTLRequestOplock,
			genericOplockInput(types.OplockLevelCacheRead|types.OplockLevelCacheWrite, types.OplockInputFlagRequest)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{status: types.StatusSuccess}
			h := NewHandler(engine, nil)
			vol, node, hc := testVolume(t, `\dir`, true, volume.Params{})

			result := h.RequestOplock(testContext(), &ControlRequest{
				Code:               tc.code,
				Input:              tc.input,
				OutputBufferLength: OplockOutputBufferSize,
				Handle:             hc,
			})

			if result.Status != types.StatusInvalidParameter {
				t.Errorf("expected STATUS_INVALID_PARAMETER, got %s", result.Status)
			}
			if engine.callCount() != 0 {
				t.Error("engine must not be called for a rejected directory oplock")
			}
			assertLocksReleased(t, vol, node)
		})
	}
}

func TestRequestOplock_DirectoryAllowsSharedGeneric(t *testing.T) {
	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	vol, node, hc := testVolume(t, `\dir`, true, volume.Params{UserModeLocking: true})

	result := h.RequestOplock(testContext(), &ControlRequest{
		Code:               types.FSCTLRequestOplock,
		Input:              genericOplockInput(types.OplockLevelCacheRead, types.OplockInputFlagRequest),
		OutputBufferLength: OplockOutputBufferSize,
		Handle:             hc,
	})

	if result.Status != types.StatusSuccess {
		t.Fatalf("expected STATUS_SUCCESS, got %s", result.Status)
	}
	if engine.callCount() != 1 {
		t.Fatal("engine was not called")
	}
	if engine.lastCount != 0 {
		t.Errorf("conflict hint on a directory must be 0, got %d", engine.lastCount)
	}
	assertLocksReleased(t, vol, node)
}

func TestRequestOplock_MalformedGenericFlags(t *testing.T) {
	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	vol, node, hc := testVolume(t, `\file.txt`, false, volume.Params{})

	result := h.RequestOplock(testContext(), &ControlRequest{
		Code:               types.FSCTLRequestOplock,
		Input:              genericOplockInput(types.OplockLevelCacheRead, 0),
		OutputBufferLength: OplockOutputBufferSize,
		Handle:             hc,
	})

	if result.Status != types.StatusInvalidParameter {
		t.Errorf("expected STATUS_INVALID_PARAMETER, got %s", result.Status)
	}
	if engine.callCount() != 0 {
		t.Error("engine must not see a malformed request")
	}
	assertLocksReleased(t, vol, node)
}

func TestRequestOplock_GenericInputTooShort(t *testing.T) {
	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	_, _, hc := testVolume(t, `\file.txt`, false, volume.Params{})

	result := h.RequestOplock(testContext(), &ControlRequest{
		Code:               types.FSCTLRequestOplock,
		Input:              make([]byte, OplockInputBufferSize-1),
		OutputBufferLength: OplockOutputBufferSize,
		Handle:             hc,
	})

	if result.Status != types.StatusInvalidParameter {
		t.Errorf("expected STATUS_INVALID_PARAMETER, got %s", result.Status)
	}
	if engine.callCount() != 0 {
		t.Error("engine must not be called")
	}
}

func TestRequestOplock_GenericOutputTooSmall(t *testing.T) {
	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	_, _, hc := testVolume(t, `\file.txt`, false, volume.Params{})

	result := h.RequestOplock(testContext(), &ControlRequest{
		Code:               types.FSCTLRequestOplock,
		Input:              genericOplockInput(types.OplockLevelCacheRead, types.OplockInputFlagRequest),
		OutputBufferLength: OplockOutputBufferSize - 1,
		Handle:             hc,
	})

	if result.Status != types.StatusBufferTooSmall {
		t.Errorf("expected STATUS_BUFFER_TOO_SMALL, got %s", result.Status)
	}
	if engine.callCount() != 0 {
		t.Error("engine must not be called")
	}
}

func TestRequestOplock_DeletePending(t *testing.T) {
	cases := []struct {
		name  string
		code  types.ControlCode
		input []byte
	}{
		{"batch", types.FSCTLRequestBatchOplock, nil},
		{"filter", types.FSCTLRequestFilterOplock, nil},
		{"generic handle caching", types.FSCTLRequestOplock,
			genericOplockInput(types.OplockLevelCacheRead|types.OplockLevelCacheHandle, types.OplockInputFlagRequest)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{status: types.StatusSuccess}
			h := NewHandler(engine, nil)
			vol, node, hc := testVolume(t, `\doomed.txt`, false, volume.Params{})
			node.SetDeletePending(true)

			result := h.RequestOplock(testContext(), &ControlRequest{
				Code:               tc.code,
				Input:              tc.input,
				OutputBufferLength: OplockOutputBufferSize,
				Handle:             hc,
			})

			if result.Status != types.StatusDeletePending {
				t.Errorf("expected STATUS_DELETE_PENDING, got %s", result.Status)
			}
			if engine.callCount() != 0 {
				t.Error("engine must not be called on a delete-pending node")
			}
			assertLocksReleased(t, vol, node)
		})
	}
}

func TestRequestOplock_DeletePendingAllowsLevel1(t *testing.T) {
	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	_, node, hc := testVolume(t, `\doomed.txt`, false, volume.Params{})
	node.SetDeletePending(true)

	result := h.RequestOplock(testContext(), &ControlRequest{
		Code:   types.FSCTLRequestOplockLevel1,
		Handle: hc,
	})

	if result.Status != types.StatusSuccess {
		t.Errorf("level 1 request on delete-pending node should reach the engine, got %s", result.Status)
	}
	if engine.callCount() != 1 {
		t.Error("engine was not called")
	}
}

func TestRequestOplock_ConflictHint(t *testing.T) {
	t.Run("shared request with no blocking locks", func(t *testing.T) {
		engine := &fakeEngine{status: types.StatusSuccess}
		h := NewHandler(engine, nil)
		_, _, hc := testVolume(t, `\file.txt`, false, volume.Params{UserModeLocking: true})

		h.RequestOplock(testContext(), &ControlRequest{
			Code:   types.FSCTLRequestOplockLevel2,
			Handle: hc,
		})

		if engine.lastCount != 0 {
			t.Errorf("expected hint 0, got %d", engine.lastCount)
		}
	})

	t.Run("shared request with blocking locks", func(t *testing.T) {
		engine := &fakeEngine{status: types.StatusSuccess}
		h := NewHandler(engine, nil)
		vol := volume.New(volume.Params{
			Device:          &fakeDevice{name: `\Device\Test`},
			Notify:          &fakeNotify{},
			UserModeLocking: true,
		})
		node := vol.AllocateNode(`\file.txt`, false, &fakeLockTable{blocks: true})
		hc := node.NewHandle()

		h.RequestOplock(testContext(), &ControlRequest{
			Code:   types.FSCTLRequestOplockLevel2,
			Handle: hc,
		})

		if engine.lastCount != 1 {
			t.Errorf("expected hint 1, got %d", engine.lastCount)
		}
	})

	t.Run("exclusive request uses handle count", func(t *testing.T) {
		engine := &fakeEngine{status: types.StatusSuccess}
		h := NewHandler(engine, nil)
		_, node, hc := testVolume(t, `\file.txt`, false, volume.Params{UserModeLocking: true})
		second := node.NewHandle()
		defer second.Close()

		h.RequestOplock(testContext(), &ControlRequest{
			Code:   types.FSCTLRequestOplockLevel1,
			Handle: hc,
		})

		if engine.lastCount != 2 {
			t.Errorf("expected hint 2, got %d", engine.lastCount)
		}
	})

	t.Run("host-native locking keeps hint at zero", func(t *testing.T) {
		engine := &fakeEngine{status: types.StatusSuccess}
		h := NewHandler(engine, nil)
		vol := volume.New(volume.Params{
			Device: &fakeDevice{name: `\Device\Test`},
			Notify: &fakeNotify{},
		})
		node := vol.AllocateNode(`\file.txt`, false, &fakeLockTable{blocks: true})
		hc := node.NewHandle()

		h.RequestOplock(testContext(), &ControlRequest{
			Code:   types.FSCTLRequestOplockLevel1,
			Handle: hc,
		})

		if engine.lastCount != 0 {
			t.Errorf("expected hint 0 with host-native locking, got %d", engine.lastCount)
		}
	})
}

func TestRequestOplock_DelegationTransfersOwnership(t *testing.T) {
	engine := &fakeEngine{status: types.StatusPending}
	h := NewHandler(engine, nil)
	vol, node, hc := testVolume(t, `\file.txt`, false, volume.Params{})

	req := &ControlRequest{
		Code:   types.FSCTLRequestOplockLevel1,
		Handle: hc,
	}
	result := h.RequestOplock(testContext(), req)

	if !req.Delegated() {
		t.Error("request must be flagged delegated after engine handoff")
	}
	if result.Status != types.StatusPending {
		t.Errorf("engine status must be forwarded verbatim, got %s", result.Status)
	}
	if engine.lastOplock != node.OplockHandle() {
		t.Error("engine must receive the node's oplock handle")
	}
	assertLocksReleased(t, vol, node)
}

func TestRequestOplock_AcknowledgeClass(t *testing.T) {
	codes := []types.ControlCode{
		types.FSCTLOplockBreakAcknowledge,
		types.FSCTLOpBatchAckClosePending,
		types.FSCTLOplockBreakNotify,
		types.FSCTLOplockBreakAckNo2,
	}

	for _, code := range codes {
		t.Run(types.ControlCodeName(code), func(t *testing.T) {
			engine := &fakeEngine{status: types.StatusSuccess}
			h := NewHandler(engine, nil)
			vol, node, hc := testVolume(t, `\file.txt`, false, volume.Params{UserModeLocking: true})

			result := h.RequestOplock(testContext(), &ControlRequest{
				Code:   code,
				Handle: hc,
			})

			if result.Status != types.StatusSuccess {
				t.Fatalf("expected STATUS_SUCCESS, got %s", result.Status)
			}
			if engine.callCount() != 1 {
				t.Fatal("engine was not called")
			}
			if engine.lastCount != 0 {
				t.Errorf("acknowledge class never computes a hint, got %d", engine.lastCount)
			}
			assertLocksReleased(t, vol, node)
		})
	}
}

func TestRequestOplock_LocksReleasedOnEngineFailure(t *testing.T) {
	engine := &fakeEngine{status: types.StatusInvalidParameter}
	h := NewHandler(engine, nil)
	vol, node, hc := testVolume(t, `\file.txt`, false, volume.Params{UserModeLocking: true})

	result := h.RequestOplock(testContext(), &ControlRequest{
		Code:   types.FSCTLRequestOplockLevel1,
		Handle: hc,
	})

	if result.Status != types.StatusInvalidParameter {
		t.Errorf("engine status must be forwarded, got %s", result.Status)
	}
	assertLocksReleased(t, vol, node)
}

func TestRequestOplock_RecordsDebugBookkeeping(t *testing.T) {
	SetOplockDebug(true)
	t.Cleanup(func() { SetOplockDebug(false) })

	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	_, node, hc := testVolume(t, `\file.txt`, false, volume.Params{})

	h.RequestOplock(testContext(), &ControlRequest{
		Code:               types.FSCTLRequestOplock,
		Input:              genericOplockInput(types.OplockLevelCacheRead, types.OplockInputFlagAck),
		OutputBufferLength: OplockOutputBufferSize,
		Handle:             hc,
	})

	debug := node.OplockDebug()
	if debug.RequestCount != 1 {
		t.Errorf("expected 1 recorded request, got %d", debug.RequestCount)
	}
	if !debug.AckSeen {
		t.Error("acknowledge flag was not recorded")
	}
	if debug.LastRequestCode != types.FSCTLRequestOplock {
		t.Errorf("unexpected recorded code %s", debug.LastRequestCode)
	}
}

func TestRequestOplock_BookkeepingOffByDefault(t *testing.T) {
	engine := &fakeEngine{status: types.StatusSuccess}
	h := NewHandler(engine, nil)
	_, node, hc := testVolume(t, `\file.txt`, false, volume.Params{})

	h.RequestOplock(testContext(), &ControlRequest{
		Code:               types.FSCTLRequestOplock,
		Input:              genericOplockInput(types.OplockLevelCacheRead, types.OplockInputFlagAck),
		OutputBufferLength: OplockOutputBufferSize,
		Handle:             hc,
	})

	if debug := node.OplockDebug(); debug.RequestCount != 0 {
		t.Errorf("expected no bookkeeping with the toggle off, got %d requests", debug.RequestCount)
	}
	if engine.callCount() != 1 {
		t.Error("engine must still be called with the toggle off")
	}
}
