package component

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/fluidframe/idgen"
)

const sampleLayout = `
- kind: header
  key: counter
  title: Here we show a dynamic number
- kind: container
  key: box
  class: flex
  attrs:
    role: group
    aria-label: actions
  children:
    - kind: button
      key: inc
      label: Increment
    - kind: text
      body: Loaded Section
`

func TestLoadLayout(t *testing.T) {
	reg := idgen.NewRegistry(nil)
	root := newTestRoot()
	l, err := LoadLayout(strings.NewReader(sampleLayout), root, WithRegistry(reg))
	if err != nil {
		t.Fatalf("LoadLayout: %v", err)
	}
	if len(l.Components) != 2 || len(root.Children()) != 2 {
		t.Fatalf("expected 2 top-level components, got %d/%d", len(l.Components), len(root.Children()))
	}
	if l.Get("counter").ID() != "counter" {
		t.Fatal("key not used as id")
	}
	inc := l.Get("inc")
	if inc == nil || inc.Parent() != Parent(l.Get("box")) {
		t.Fatal("nested child not attached to its container")
	}
	if inc.Root() != RouteRegistrar(root) {
		t.Fatal("nested child must resolve the root")
	}
	box := l.Get("box").Render()
	if !strings.HasPrefix(box, `<div id="box" class="flex" aria-label="actions" role="group">`) {
		t.Fatalf("container render: %s", box)
	}
}

func TestLoadLayout_RejectsUnknownField(t *testing.T) {
	root := newTestRoot()
	_, err := LoadLayout(strings.NewReader("- kind: text\n  colour: red\n"), root, WithRegistry(idgen.NewRegistry(nil)))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if len(root.Children()) != 0 {
		t.Fatal("bad layout must not attach anything")
	}
}

func TestLoadLayout_RejectsFieldOfOtherKind(t *testing.T) {
	_, err := LoadLayout(strings.NewReader("- kind: button\n  title: nope\n"), newTestRoot(), WithRegistry(idgen.NewRegistry(nil)))
	if !errors.Is(err, ErrAttributeConflict) {
		t.Fatalf("expected ErrAttributeConflict, got %v", err)
	}
}

func TestLoadLayout_UnknownKind(t *testing.T) {
	_, err := LoadLayout(strings.NewReader("- kind: slider\n"), newTestRoot(), WithRegistry(idgen.NewRegistry(nil)))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestLoadLayout_ReservedAttr(t *testing.T) {
	_, err := LoadLayout(strings.NewReader("- kind: text\n  attrs:\n    type: x\n"), newTestRoot(), WithRegistry(idgen.NewRegistry(nil)))
	if !errors.Is(err, ErrAttributeConflict) {
		t.Fatalf("expected ErrAttributeConflict, got %v", err)
	}
}

func TestLoadLayout_UnsafeNames(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want error
	}{
		{"attr name", "- kind: text\n  attrs:\n    'x\"><script>': v\n", ErrInvalidAttribute},
		{"key with slash", "- kind: text\n  key: a/b\n", ErrInvalidKey},
		{"nested key", "- kind: container\n  children:\n    - kind: text\n      key: 'a b'\n", ErrInvalidKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := newTestRoot()
			_, err := LoadLayout(strings.NewReader(tc.yaml), root, WithRegistry(idgen.NewRegistry(nil)))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(root.Children()) != 0 {
				t.Fatal("bad layout attached components")
			}
		})
	}
}

func TestLoadLayout_ReleasesKeysOnError(t *testing.T) {
	reg := idgen.NewRegistry(nil)
	bad := "- kind: header\n  key: title\n- kind: nope\n"
	if _, err := LoadLayout(strings.NewReader(bad), newTestRoot(), WithRegistry(reg)); err == nil {
		t.Fatal("expected error")
	}
	if err := reg.Claim("title"); err != nil {
		t.Fatalf("key not released after failed load: %v", err)
	}
}

func TestLoadLayout_Empty(t *testing.T) {
	l, err := LoadLayout(strings.NewReader(""), newTestRoot())
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Components) != 0 {
		t.Fatal("expected no components")
	}
}
