package ir

import (
	"fmt"
	"strings"

	"toyir/internal/errors"
)

// Linkage of a global variable
type Linkage string

const (
	LinkageCommon   Linkage = "common"
	LinkageExternal Linkage = "external"
)

// DefaultLinkage is the linkage every global is declared with
const DefaultLinkage = LinkageCommon

// GlobalVariable is module-scoped storage of an integer type
type GlobalVariable struct {
	Name    string
	Type    *IntType
	Linkage Linkage
	Align   int
}

func (g *GlobalVariable) String() string {
	return fmt.Sprintf("global %s: %s", g.Name, g.Type)
}

// Module owns functions and globals, keyed by name and kept in declaration
// order.
type Module struct {
	Name string

	functions []*Function
	globals   []*GlobalVariable

	funcByName   map[string]*Function
	globalByName map[string]*GlobalVariable
}

func newModule(name string) *Module {
	return &Module{
		Name:         name,
		funcByName:   make(map[string]*Function),
		globalByName: make(map[string]*GlobalVariable),
	}
}

// Functions returns the functions in declaration order
func (m *Module) Functions() []*Function {
	out := make([]*Function, len(m.functions))
	copy(out, m.functions)
	return out
}

// Globals returns the globals in declaration order
func (m *Module) Globals() []*GlobalVariable {
	out := make([]*GlobalVariable, len(m.globals))
	copy(out, m.globals)
	return out
}

// Function looks a function up by name
func (m *Module) Function(name string) *Function { return m.funcByName[name] }

// Global looks a global up by name
func (m *Module) Global(name string) *GlobalVariable { return m.globalByName[name] }

func (m *Module) function(id FuncID) *Function {
	if id < 0 || int(id) >= len(m.functions) {
		return nil
	}
	return m.functions[id]
}

// DeclareFunction declares a function with the given parameter and return
// types; a nil return type means void. Declaring a name again with an
// identical signature returns the existing function. A different signature,
// or a global of that name, is a DuplicateSymbol error.
func (c *Context) DeclareFunction(name string, params []*IntType, ret *IntType) (*Function, error) {
	// resolve every type before allocating anything
	var err error
	if ret != nil {
		if ret, err = c.resolveType(ret, fmt.Sprintf("return value of '%s'", name)); err != nil {
			return nil, err
		}
	}
	types := make([]*IntType, len(params))
	for i, p := range params {
		if types[i], err = c.resolveType(p, fmt.Sprintf("parameter %d of '%s'", i, name)); err != nil {
			return nil, err
		}
	}

	requested := signatureString(name, types, ret)

	if g := c.module.globalByName[name]; g != nil {
		return nil, errors.DuplicateSymbolError(name, g.String(), requested)
	}
	if fn := c.module.funcByName[name]; fn != nil {
		if fn.Signature() != requested {
			return nil, errors.DuplicateSymbolError(name, fn.Signature(), requested)
		}
		return fn, nil
	}

	fn := &Function{
		ID:         FuncID(len(c.module.functions)),
		Name:       name,
		Params:     make([]*Parameter, len(types)),
		ReturnType: ret,
		Entry:      NoBlock,
		stubs:      make(map[InstID]bool),
	}
	for i, typ := range types {
		def := c.newValue(ValueParameter, typ, "")
		def.Func = fn.ID
		def.Param = i
		fn.Params[i] = &Parameter{Type: typ, Value: def.Handle()}
	}

	c.module.functions = append(c.module.functions, fn)
	c.module.funcByName[name] = fn
	log.Debugf("declared function %s", requested)
	return fn, nil
}

// DeclareGlobal declares a global with common linkage and the natural
// alignment of typ. Declaring it again with the same type returns the existing
// global; another type, or a function of that name, is a DuplicateSymbol
// error.
func (c *Context) DeclareGlobal(name string, typ *IntType) (*GlobalVariable, error) {
	typ, err := c.resolveType(typ, fmt.Sprintf("global '%s'", name))
	if err != nil {
		return nil, err
	}
	requested := fmt.Sprintf("global %s: %s", name, typ)

	if fn := c.module.funcByName[name]; fn != nil {
		return nil, errors.DuplicateSymbolError(name, fn.Signature(), requested)
	}
	if g := c.module.globalByName[name]; g != nil {
		if g.Type != typ {
			return nil, errors.DuplicateSymbolError(name, g.String(), requested)
		}
		return g, nil
	}

	g := &GlobalVariable{
		Name:    name,
		Type:    typ,
		Linkage: DefaultLinkage,
		Align:   naturalAlign(typ),
	}
	c.module.globals = append(c.module.globals, g)
	c.module.globalByName[name] = g
	log.Debugf("declared %s", requested)
	return g, nil
}

// BindParameters names the parameters of fn positionally
func (c *Context) BindParameters(fn *Function, names []string) error {
	if fn == nil {
		return errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"cannot bind parameters of a nil function").Build()
	}
	if len(names) != len(fn.Params) {
		return errors.ArityMismatchError(fn.Name, len(fn.Params), len(names))
	}
	for i, name := range names {
		fn.Params[i].Name = name
		c.values[fn.Params[i].Value.ID].Name = name
	}
	return nil
}

func signatureString(name string, params []*IntType, ret *IntType) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = typeString(p)
	}
	return fmt.Sprintf("%s %s(%s)", typeString(ret), name, strings.Join(types, ", "))
}
