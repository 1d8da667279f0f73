package volume

import (
	"testing"
	"time"
)

type testDevice struct{}

func (testDevice) DeviceName() string { return `\Device\Test` }
func (testDevice) SessionID() uint32  { return 0 }

func newTestVolume(gcInterval time.Duration) *Volume {
	return New(Params{
		Device:     testDevice{},
		GCInterval: gcInterval,
		Label:      "TEST",
		Serial:     0x19831116,
	})
}

func TestVolume_InitialState(t *testing.T) {
	v := newTestVolume(0)

	if v.Kind() != KindVolume {
		t.Errorf("unexpected kind %s", v.Kind())
	}
	if v.Mounted() {
		t.Error("new volume must not be mounted")
	}
	if !v.Initializing() {
		t.Error("new volume must be initializing")
	}
	if v.KeepaliveActive() {
		t.Error("new volume must have no keepalive")
	}
	if v.NodeCount() != 0 {
		t.Errorf("expected empty node set, got %d", v.NodeCount())
	}
}

func TestVolume_AllocateNode(t *testing.T) {
	v := newTestVolume(0)

	n := v.AllocateNode(`\a.txt`, false, nil)
	if n.Kind() != KindNode {
		t.Errorf("unexpected kind %s", n.Kind())
	}
	if n.Volume() != v {
		t.Error("node back-reference not set")
	}
	if n.OplockHandle() == nil || n.OplockHandle().Node() != n {
		t.Error("oplock handle not bound to node")
	}

	t.Run("idempotent per name", func(t *testing.T) {
		if again := v.AllocateNode(`\a.txt`, false, nil); again != n {
			t.Error("second allocation for the same name must return the existing node")
		}
		if v.NodeCount() != 1 {
			t.Errorf("expected 1 node, got %d", v.NodeCount())
		}
	})

	t.Run("keepalive name is flagged", func(t *testing.T) {
		k := v.AllocateNode(KeepaliveFileName, false, nil)
		if !k.IsKeepaliveCapable() {
			t.Error("keepalive file must be keepalive-capable")
		}
		if n.IsKeepaliveCapable() {
			t.Error("regular file must not be keepalive-capable")
		}
	})
}

func TestNode_HandleLifecycle(t *testing.T) {
	v := newTestVolume(0)
	n := v.AllocateNode(`\a.txt`, false, nil)

	h1 := n.NewHandle()
	h2 := n.NewHandle()
	if n.HandleCount() != 2 {
		t.Fatalf("expected 2 handles, got %d", n.HandleCount())
	}

	h1.Close()
	if n.HandleCount() != 1 {
		t.Errorf("expected 1 handle, got %d", n.HandleCount())
	}
	if v.NodeCount() != 1 {
		t.Error("node must stay live while handles remain")
	}

	h2.Close()
	if v.NodeCount() != 0 {
		t.Error("node must be retired when the last handle closes")
	}
	if v.GarbageCount() != 0 {
		t.Error("without a GC interval retired nodes are freed directly")
	}
}

func TestNode_RetireToGarbageList(t *testing.T) {
	v := newTestVolume(time.Minute)
	n := v.AllocateNode(`\a.txt`, false, nil)

	n.NewHandle().Close()

	if v.NodeCount() != 0 {
		t.Error("retired node still in node set")
	}
	if v.GarbageCount() != 1 {
		t.Fatalf("expected 1 node awaiting collection, got %d", v.GarbageCount())
	}

	if freed := v.CollectGarbage(); freed != 1 {
		t.Errorf("expected 1 node collected, got %d", freed)
	}
	if v.GarbageCount() != 0 {
		t.Error("garbage list not drained")
	}
}

func TestVolume_ActivateKeepalive(t *testing.T) {
	v := newTestVolume(0)
	n := v.AllocateNode(KeepaliveFileName, false, nil)
	h := n.NewHandle()

	v.ActivateKeepalive(h)

	if !v.KeepaliveActive() {
		t.Error("volume flag not set")
	}
	if !h.KeepaliveActive() {
		t.Error("handle flag not set")
	}
}

func TestVolume_KeepaliveDeactivatesOnClose(t *testing.T) {
	v := newTestVolume(0)
	n := v.AllocateNode(KeepaliveFileName, false, nil)
	h := n.NewHandle()
	other := n.NewHandle()

	v.ActivateKeepalive(h)
	other.Close()
	if !v.KeepaliveActive() {
		t.Fatal("closing a non-keepalive handle must not deactivate the keepalive")
	}

	h.Close()
	if v.KeepaliveActive() {
		t.Error("volume flag still set after the keepalive handle closed")
	}
	if h.KeepaliveActive() {
		t.Error("handle flag still set after close")
	}
}

func TestVolume_MountFlags(t *testing.T) {
	v := newTestVolume(0)

	v.SetDirectIO(true)
	v.FinishInitializing()
	v.SetMounted(true)

	if !v.DirectIO() || v.Initializing() || !v.Mounted() {
		t.Error("mount sequencing flags not reflected")
	}
	if v.Label() != "TEST" || v.Serial() != 0x19831116 {
		t.Error("volume parameters not carried from construction")
	}
}
