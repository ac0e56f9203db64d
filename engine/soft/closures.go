package soft

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
	"github.com/gogpu/osl/ustring"
)

// closureDecl is a registered closure layout.
type closureDecl struct {
	name   string
	id     int32
	fields []engine.ClosureParam
	size   int
	align  int
}

// RegisterClosure records a closure layout. params must end with a
// sentinel. Re-registering a name replaces its layout; conflicting ids are
// reported and ignored.
func (e *Engine) RegisterClosure(name string, id int32, params []engine.ClosureParam) {
	if len(params) == 0 || !params[len(params)-1].IsSentinel() {
		e.report(engine.ErrCodeError, fmt.Sprintf("closure %q: layout has no sentinel", name))
		return
	}
	end := params[len(params)-1]
	decl := &closureDecl{
		name:   name,
		id:     id,
		fields: append([]engine.ClosureParam(nil), params[:len(params)-1]...),
		size:   int(end.Offset),
		align:  int(end.FieldSize),
	}
	for i, p := range decl.fields {
		if int(p.Offset)+int(p.FieldSize) > decl.size || p.FieldSize != int32(p.Type.Size()) {
			e.report(engine.ErrCodeError, fmt.Sprintf("closure %q: field %d does not fit the record", name, i))
			return
		}
	}

	e.closureMu.Lock()
	defer e.closureMu.Unlock()
	if other, ok := e.closuresByID[id]; ok && other.name != name {
		e.report(engine.ErrCodeError, fmt.Sprintf("closure %q: id %d already used by %q", name, id, other.name))
		return
	}
	if old, ok := e.closures[name]; ok {
		delete(e.closuresByID, old.id)
	}
	e.closures[name] = decl
	e.closuresByID[id] = decl
	slogger().Debug("soft: closure registered", "name", name, "id", id, "fields", len(decl.fields))
}

func (e *Engine) closure(name string) *closureDecl {
	e.closureMu.RLock()
	defer e.closureMu.RUnlock()
	return e.closures[name]
}

// checkSignature verifies that a kernel's expectation of a closure matches
// the registered layout.
func (d *closureDecl) checkSignature(sig ClosureSignature) error {
	if len(sig.Fields) != len(d.fields) {
		return fmt.Errorf("closure %q registered with %d fields, shader expects %d",
			d.name, len(d.fields), len(sig.Fields))
	}
	for i, td := range sig.Fields {
		if !d.fields[i].Type.Equivalent(td) {
			return fmt.Errorf("closure %q field %d registered as %s, shader expects %s",
				d.name, i, d.fields[i].Type, td)
		}
	}
	return nil
}

// pack builds the parameter record for args in the registered layout.
func (d *closureDecl) pack(args []any) ([]byte, error) {
	if len(args) != len(d.fields) {
		return nil, fmt.Errorf("%w: %q takes %d arguments, got %d", ErrClosureArgs, d.name, len(d.fields), len(args))
	}
	rec := engine.AlignedBytes(d.size)
	for i, f := range d.fields {
		dst := rec[f.Offset : f.Offset+f.FieldSize]
		if !putField(dst, f.Type, args[i]) {
			return nil, fmt.Errorf("%w: %q field %d is %s, got %T", ErrClosureArgs, d.name, i, f.Type, args[i])
		}
	}
	return rec, nil
}

// putField writes one argument into dst. The record buffer is 8-aligned and
// field offsets come from the Go layout, so typed stores are aligned.
func putField(dst []byte, td typedesc.TypeDesc, arg any) bool {
	p := unsafe.Pointer(&dst[0])
	switch {
	case td.Equivalent(typedesc.TypeString):
		switch v := arg.(type) {
		case string:
			*(*ustring.Ustring)(p) = ustring.New(v)
		case ustring.Ustring:
			*(*ustring.Ustring)(p) = v
		default:
			return false
		}
	case td.Equivalent(typedesc.TypeFloat):
		v, ok := arg.(float32)
		if !ok {
			return false
		}
		*(*uint32)(p) = math.Float32bits(v)
	case td.Equivalent(typedesc.TypeInt32):
		v, ok := arg.(int32)
		if !ok {
			return false
		}
		*(*int32)(p) = v
	case td.IsTriple():
		v, ok := arg.(f32.Vec3)
		if !ok {
			return false
		}
		*(*f32.Vec3)(p) = v
	default:
		return false
	}
	return true
}
