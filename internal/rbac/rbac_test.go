package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionAnnotate, false},
		{RoleAnnotator, ActionAnnotate, true},
		{RoleAnnotator, ActionEdit, false},
		{RoleEditor, ActionEdit, true},
		{RoleEditor, ActionAdmin, false},
		{RoleAdmin, ActionAdmin, true},
		{Role("ghost"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Fatalf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Fatal("expected editor to be kept")
	}
	if Normalize("") != RoleViewer || Normalize("root") != RoleViewer {
		t.Fatal("expected unknown roles to fall back to viewer")
	}
	if Valid("root") || !Valid("annotator") {
		t.Fatal("unexpected Valid result")
	}
}
