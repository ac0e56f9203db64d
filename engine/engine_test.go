package engine

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/typedesc"
)

// =============================================================================
// Registry Tests
// =============================================================================

// stubEngine satisfies Engine for registry tests.
type stubEngine struct{ name string }

func (stubEngine) RegisterClosure(string, int32, []ClosureParam) {}
func (stubEngine) Attribute(string, typedesc.TypeDesc, []byte) bool {
	return false
}
func (stubEngine) GetAttribute(string, typedesc.TypeDesc) ([]byte, bool) { return nil, false }
func (stubEngine) GroupAttribute(GroupHandle, string, typedesc.TypeDesc, []byte) bool {
	return false
}
func (stubEngine) ShaderGroupBegin(string) GroupHandle { return 0 }
func (stubEngine) Parameter(GroupHandle, string, typedesc.TypeDesc, []byte, bool) bool {
	return false
}
func (stubEngine) Shader(GroupHandle, string, string, string) bool { return false }
func (stubEngine) ConnectShaders(GroupHandle, string, string, string, string) bool {
	return false
}
func (stubEngine) ShaderGroupEnd(GroupHandle) bool              { return false }
func (stubEngine) DestroyGroup(GroupHandle)                     {}
func (stubEngine) CreateThreadInfo() ThreadInfoHandle           { return 0 }
func (stubEngine) DestroyThreadInfo(ThreadInfoHandle)           {}
func (stubEngine) GetContext(ThreadInfoHandle) ContextHandle    { return 0 }
func (stubEngine) ReleaseContext(ContextHandle)                 {}
func (stubEngine) FindSymbol(GroupHandle, string) SymbolHandle  { return 0 }
func (stubEngine) SymbolTypeDesc(SymbolHandle) typedesc.TypeDesc { return typedesc.TypeUnknown }
func (stubEngine) Close()                                       {}
func (stubEngine) Execute(ContextHandle, GroupHandle, *ShaderGlobals, bool) bool {
	return false
}
func (stubEngine) SymbolAddress(ContextHandle, SymbolHandle) unsafe.Pointer { return nil }

func TestRegistry_RegisterGet(t *testing.T) {
	Register("stub-a", func(RendererServices, ErrorHandler) (Engine, error) {
		return stubEngine{name: "stub-a"}, nil
	})
	defer Unregister("stub-a")

	assert.True(t, IsRegistered("stub-a"))
	assert.Contains(t, Available(), "stub-a")

	e, err := Get("stub-a", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "stub-a", e.(stubEngine).name)
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := Get("no-such-engine", nil, nil)
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestRegistry_DefaultFallsBack(t *testing.T) {
	if IsRegistered(NameSoft) {
		t.Skip("soft engine registered; priority path covered elsewhere")
	}
	Register("stub-b", func(RendererServices, ErrorHandler) (Engine, error) {
		return stubEngine{name: "stub-b"}, nil
	})
	defer Unregister("stub-b")

	e, err := Default(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestRegistry_Unregister(t *testing.T) {
	Register("stub-c", func(RendererServices, ErrorHandler) (Engine, error) { return stubEngine{}, nil })
	Unregister("stub-c")
	assert.False(t, IsRegistered("stub-c"))
}

// =============================================================================
// Wire Types
// =============================================================================

func TestErrCode_String(t *testing.T) {
	assert.Equal(t, "WARNING", ErrCodeWarning.String())
	assert.Equal(t, "SEVERE", ErrCodeSevere.String())
	assert.Equal(t, "DEBUG", ErrCodeDebug.String())
	assert.Equal(t, ErrCode(3<<16), ErrCodeError)
}

func TestClosureParam_IsSentinel(t *testing.T) {
	assert.True(t, ClosureParam{Type: typedesc.TypeUnknown, Offset: 16, FieldSize: 4}.IsSentinel())
	assert.False(t, ClosureParam{Type: typedesc.TypeNormal}.IsSentinel())
}

func TestClosureColor_Flatten(t *testing.T) {
	diffuse := &ClosureColor{Kind: ClosureComponent, ID: 1, Weight: f32.Vec3{1, 1, 1}}
	emission := &ClosureColor{Kind: ClosureComponent, ID: 0, Weight: f32.Vec3{2, 2, 2}}
	tree := &ClosureColor{
		Kind: ClosureAdd,
		A:    &ClosureColor{Kind: ClosureMul, Weight: f32.Vec3{0.5, 0.25, 1}, A: diffuse},
		B:    emission,
	}

	comps := tree.Flatten()
	require.Len(t, comps, 2)
	assert.Equal(t, f32.Vec3{0.5, 0.25, 1}, comps[0].Weight)
	assert.Same(t, diffuse, comps[0].Component)
	assert.Equal(t, f32.Vec3{2, 2, 2}, comps[1].Weight)

	var empty *ClosureColor
	assert.Nil(t, empty.Flatten())
}
