package vm

import (
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
)

// Call is the execution context handed to native procedures.
type Call struct {
	vm  *VirtualMachine
	num op.CallNum
}

// VM returns the machine running the call.
func (c *Call) VM() *VirtualMachine { return c.vm }

// CallNum returns the call number of the running procedure.
func (c *Call) CallNum() op.CallNum { return c.num }

// Heap returns the allocator of the machine.
func (c *Call) Heap() *object.Heap { return c.vm.heap }

// Parent returns the object the procedure is applied at.
func (c *Call) Parent() object.Ptr { return c.vm.parentSlot().Obj() }

// Child returns the argument of the procedure.
func (c *Call) Child() object.Ptr { return c.vm.childSlot().Obj() }

// SetFailMsg sets the failure message reported when the procedure fails.
func (c *Call) SetFailMsg(msg string) { c.vm.failMsg = msg }

// FailMsg returns the current failure message.
func (c *Call) FailMsg() string { return c.vm.failMsg }

func (c *Call) access(p object.Ptr, t op.Type, what string) (object.Ptr, error) {
	if !p.Valid(slotSize[t]) {
		return object.Null, errz.NewStructuredErrorf(errz.ErrBounds, nil,
			"%s is not a valid %s", what, t.Name())
	}
	return p, nil
}

// ChildChar reads the child as a Char.
func (c *Call) ChildChar() (byte, error) {
	p, err := c.access(c.Child(), op.TypeChar, "child")
	if err != nil {
		return 0, err
	}
	return p.Char(), nil
}

// ChildInt reads the child as an Int.
func (c *Call) ChildInt() (int64, error) {
	p, err := c.access(c.Child(), op.TypeInt, "child")
	if err != nil {
		return 0, err
	}
	return p.Int(), nil
}

// ChildReal reads the child as a Real.
func (c *Call) ChildReal() (float64, error) {
	p, err := c.access(c.Child(), op.TypeReal, "child")
	if err != nil {
		return 0, err
	}
	return p.Real(), nil
}

// ChildPoint reads the child as a Point.
func (c *Call) ChildPoint() (object.Point, error) {
	p, err := c.access(c.Child(), op.TypePoint, "child")
	if err != nil {
		return object.Point{}, err
	}
	return p.Point(), nil
}

// SetParentChar stores a Char result in the parent.
func (c *Call) SetParentChar(v byte) error {
	p, err := c.access(c.Parent(), op.TypeChar, "parent")
	if err == nil {
		p.SetChar(v)
	}
	return err
}

// SetParentInt stores an Int result in the parent.
func (c *Call) SetParentInt(v int64) error {
	p, err := c.access(c.Parent(), op.TypeInt, "parent")
	if err == nil {
		p.SetInt(v)
	}
	return err
}

// SetParentReal stores a Real result in the parent.
func (c *Call) SetParentReal(v float64) error {
	p, err := c.access(c.Parent(), op.TypeReal, "parent")
	if err == nil {
		p.SetReal(v)
	}
	return err
}

// SetParentPoint stores a Point result in the parent.
func (c *Call) SetParentPoint(v object.Point) error {
	p, err := c.access(c.Parent(), op.TypePoint, "parent")
	if err == nil {
		p.SetPoint(v)
	}
	return err
}
