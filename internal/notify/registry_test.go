package notify

import (
	"testing"

	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

func collect(changes *[]Change) func(Change) {
	return func(c Change) { *changes = append(*changes, c) }
}

func TestRegistry_ExactMatchIsOneShot(t *testing.T) {
	r := NewRegistry()
	var got []Change
	r.Register(`\docs`, FileNotifyChangeFileName, false, collect(&got))

	status := r.ReportChange(`\docs\new.txt`, FileNotifyChangeFileName, FileActionAdded)
	if status != types.StatusSuccess {
		t.Fatalf("expected STATUS_SUCCESS, got %s", status)
	}
	if len(got) != 1 || got[0].Path != `\docs\new.txt` || got[0].Action != FileActionAdded {
		t.Fatalf("unexpected delivery %+v", got)
	}
	if r.PendingCount() != 0 {
		t.Error("watch must be consumed after delivery")
	}

	// A second change finds no watcher.
	r.ReportChange(`\docs\other.txt`, FileNotifyChangeFileName, FileActionAdded)
	if len(got) != 1 {
		t.Error("consumed watch must not fire again")
	}
}

func TestRegistry_FilterMismatch(t *testing.T) {
	r := NewRegistry()
	var got []Change
	r.Register(`\docs`, FileNotifyChangeSize, false, collect(&got))

	r.ReportChange(`\docs\new.txt`, FileNotifyChangeFileName, FileActionAdded)

	if len(got) != 0 {
		t.Error("filter mismatch must not deliver")
	}
	if r.PendingCount() != 1 {
		t.Error("unmatched watch must stay pending")
	}
}

func TestRegistry_RecursiveWatch(t *testing.T) {
	r := NewRegistry()
	var flat, deep []Change
	r.Register(`\docs`, FileNotifyChangeFileName, false, collect(&flat))
	r.Register(`\docs`, FileNotifyChangeFileName, true, collect(&deep))

	r.ReportChange(`\docs\sub\dir\new.txt`, FileNotifyChangeFileName, FileActionAdded)

	if len(flat) != 0 {
		t.Error("non-recursive watch must not match a nested change")
	}
	if len(deep) != 1 {
		t.Error("recursive watch must match a nested change")
	}
}

func TestRegistry_RootWatch(t *testing.T) {
	r := NewRegistry()
	var got []Change
	r.Register(`\`, FileNotifyChangeFileName, false, collect(&got))

	r.ReportChange(`\new.txt`, FileNotifyChangeFileName, FileActionAdded)

	if len(got) != 1 {
		t.Fatalf("root watch did not match, got %d deliveries", len(got))
	}
}

func TestRegistry_InvalidPath(t *testing.T) {
	r := NewRegistry()
	var got []Change
	r.Register(`\docs`, FileNotifyChangeFileName, false, collect(&got))

	cases := []string{"", "no-leading-separator", "\\docs\\bad\x00name"}
	for _, path := range cases {
		if status := r.ReportChange(path, FileNotifyChangeFileName, FileActionAdded); status != types.StatusObjectNameInvalid {
			t.Errorf("path %q: expected STATUS_OBJECT_NAME_INVALID, got %s", path, status)
		}
	}
	if len(got) != 0 {
		t.Error("invalid paths must not deliver")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	var got []Change
	id := r.Register(`\docs`, FileNotifyChangeFileName, false, collect(&got))

	r.Unregister(id)
	r.Unregister(id) // unknown id is ignored

	r.ReportChange(`\docs\new.txt`, FileNotifyChangeFileName, FileActionAdded)
	if len(got) != 0 {
		t.Error("unregistered watch must not deliver")
	}
}

func TestRegistry_CleanupAllWaiters(t *testing.T) {
	r := NewRegistry()
	var got []Change
	r.Register(`\docs`, FileNotifyChangeFileName, false, collect(&got))
	r.Register(`\media`, FileNotifyChangeFileName, true, collect(&got))

	r.CleanupAllWaiters()

	if r.PendingCount() != 0 {
		t.Error("flush must drop every pending watch")
	}
	if len(got) != 0 {
		t.Error("flush must not deliver")
	}
}
