package genicam

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

// RegKind tags the register symbol table's variant (§3).
type RegKind int

const (
	KindIntegerLiteral RegKind = iota
	KindFloatLiteral
	KindStringLiteral
	KindAliasLink
	KindStringReg
	KindIntReg
	KindFloatReg
	KindMaskedIntReg
	KindStructEntry
	KindIntSwissKnife
	KindSwissKnife
	KindIntConverter
	KindConverter
	KindEnumeration
	KindFloat
	KindInteger
	KindCommand
)

// Access is the register's access mode.
type Access int

const (
	RW Access = iota
	RO
	WO
)

// Endian selects byte order for register I/O.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// Reg is the single tagged sum over every GenICam node kind (§3, §9): one
// struct carrying only the fields each variant needs, dispatched on Kind by
// Table.Get/Set rather than modeled via an interface hierarchy, because the
// dispatch table is small and fixed and expression evaluation needs
// variant reflection.
type Reg struct {
	Name   string
	Kind   RegKind
	Access Access

	// IntegerLiteral / FloatLiteral / StringLiteral
	IntLit    int64
	FloatLit  float64
	StringLit string

	// AliasLink / StructEntry / pAddress indirection
	AliasOf  string
	PAddress string // name of another integer node supplying the address

	// IntReg / FloatReg / MaskedIntReg / StringReg
	Address  int64
	Length   int
	Endian   Endian
	Signed   bool
	LSB, MSB int // bit window; MSB < 0 means "no window"

	// IntSwissKnife offset expression name (added to Address before read)
	OffsetExprName string

	// Converters / SwissKnife: expression source, parsed lazily
	FormulaFrom string
	FormulaTo   string
	Formula     string
	Deps        []string // named dependencies referenced by the formula

	// Float/Integer wrapping nodes
	MinRef, MaxRef, IncRef string

	// Enumeration: symbolic name -> underlying integer value
	EnumValues map[string]int64
	EnumOn     string // name of the underlying IntReg/Integer node

	mu         sync.Mutex
	fromAST    Expr
	toAST      Expr
	formulaAST Expr
}

// PortIO is the minimal GCReadPort/GCWritePort contract a Table needs; the
// device wires this to the loaded GenTL module (transport.go).
type PortIO interface {
	ReadPort(address int64, length int) ([]byte, error)
	WritePort(address int64, data []byte) error
}

// Table is the register symbol table: it is closed (§3 invariant) — every
// named dependency resolves within it — which the XML loader enforces at
// parse time.
type Table struct {
	port PortIO
	regs map[string]*Reg
}

// NewTable wraps port with an empty, to-be-populated symbol table.
func NewTable(port PortIO) *Table {
	return &Table{port: port, regs: make(map[string]*Reg)}
}

// Add installs r under its name; used by the XML loader.
func (t *Table) Add(r *Reg) { t.regs[r.Name] = r }

// Validate checks the closure invariant: every named dependency resolves.
func (t *Table) Validate() error {
	for name, r := range t.regs {
		for _, dep := range allDeps(r) {
			if _, ok := t.regs[dep]; !ok {
				log.Printf("genicam: symbol table closure violated, dumping table:\n%s", spew.Sdump(t.regs))
				return fmt.Errorf("genicam: register %q depends on undefined %q", name, dep)
			}
		}
	}
	return nil
}

func allDeps(r *Reg) []string {
	var out []string
	if r.AliasOf != "" {
		out = append(out, r.AliasOf)
	}
	if r.PAddress != "" {
		out = append(out, r.PAddress)
	}
	if r.OffsetExprName != "" {
		out = append(out, r.OffsetExprName)
	}
	out = append(out, r.Deps...)
	if r.MinRef != "" {
		out = append(out, r.MinRef)
	}
	if r.MaxRef != "" {
		out = append(out, r.MaxRef)
	}
	if r.IncRef != "" {
		out = append(out, r.IncRef)
	}
	if r.EnumOn != "" {
		out = append(out, r.EnumOn)
	}
	return out
}

func readNoData(err error) bool {
	ne, ok := err.(*NoDataError)
	return ok && ne != nil
}

// NoDataError marks a port read that returned no data; per the failure
// policy (§4.3), such reads return zero rather than propagating.
type NoDataError struct{}

func (*NoDataError) Error() string { return "NO_DATA" }

// resolve looks up a named register, recursing through AliasLink.
func (t *Table) resolve(name string) (*Reg, error) {
	r, ok := t.regs[name]
	if !ok {
		return nil, fmt.Errorf("genicam: unknown register %q", name)
	}
	seen := map[string]bool{}
	for r.Kind == KindAliasLink {
		if seen[r.Name] {
			return nil, fmt.Errorf("genicam: alias cycle at %q", name)
		}
		seen[r.Name] = true
		next, ok := t.regs[r.AliasOf]
		if !ok {
			return nil, fmt.Errorf("genicam: alias %q -> undefined %q", r.Name, r.AliasOf)
		}
		r = next
	}
	return r, nil
}

func (r *Reg) bitWindowLen() (lsb, msb int, has bool) {
	if r.MSB < 0 {
		return 0, 0, false
	}
	return r.LSB, r.MSB, true
}

// Get dispatches read evaluation by variant (§4.3 step 3).
func (t *Table) Get(name string) (float64, error) {
	r, err := t.resolve(name)
	if err != nil {
		return 0, err
	}
	return t.getReg(r)
}

func (t *Table) getReg(r *Reg) (float64, error) {
	switch r.Kind {
	case KindIntegerLiteral:
		return float64(r.IntLit), nil
	case KindFloatLiteral:
		return r.FloatLit, nil
	case KindIntReg, KindMaskedIntReg, KindInteger:
		v, err := t.readIntReg(r)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	case KindFloatReg, KindFloat:
		v, err := t.readIntReg(r)
		if err != nil {
			return 0, err
		}
		return floatFromBits(v, r.Length), nil
	case KindIntSwissKnife:
		return t.evalFormula(r, &r.formulaAST, r.Formula, "")
	case KindSwissKnife:
		return t.evalFormula(r, &r.formulaAST, r.Formula, "")
	case KindIntConverter, KindConverter:
		return t.evalFormula(r, &r.toAST, r.FormulaTo, "TO")
	case KindEnumeration:
		v, err := t.Get(r.EnumOn)
		if err != nil {
			return 0, err
		}
		return v, nil
	case KindStructEntry:
		v, err := t.readIntReg(r)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
	return 0, fmt.Errorf("genicam: register %q is not readable as a number", r.Name)
}

// Set dispatches write evaluation by variant.
func (t *Table) Set(name string, value float64) error {
	r, err := t.resolve(name)
	if err != nil {
		return err
	}
	if r.Kind == KindInteger || r.Kind == KindFloat {
		value = t.clampAgainstRefs(r, value)
	}
	switch r.Kind {
	case KindIntReg, KindMaskedIntReg, KindInteger, KindStructEntry:
		return t.writeIntReg(r, int64(value))
	case KindFloatReg, KindFloat:
		return t.writeIntReg(r, bitsFromFloat(value, r.Length))
	case KindIntConverter, KindConverter:
		// The FROM formula computes the underlying value in terms of the
		// pseudo-variable FROM bound to value; write it through the first
		// dependency that is itself writable.
		env := t.env(r)
		env["FROM"] = value
		ast, err := parsedFormula(&r.fromAST, r.FormulaFrom)
		if err != nil {
			return err
		}
		underlying, err := ast.eval(env)
		if err != nil {
			return err
		}
		if len(r.Deps) == 0 {
			return fmt.Errorf("genicam: converter %q has no writable dependency", r.Name)
		}
		return t.Set(r.Deps[0], underlying)
	case KindEnumeration:
		return t.Set(r.EnumOn, value)
	}
	return fmt.Errorf("genicam: register %q is not writable", r.Name)
}

// clampAgainstRefs implements the Integer/Float wrapping-node clamp rule:
// values are bounded by MinRef/MaxRef and, if IncRef is set, snapped to
// min + k*inc (§4.3 step 3).
func (t *Table) clampAgainstRefs(r *Reg, value float64) float64 {
	min, max, inc := math.Inf(-1), math.Inf(1), 0.0
	if r.MinRef != "" {
		if v, err := t.Get(r.MinRef); err == nil {
			min = v
		}
	}
	if r.MaxRef != "" {
		if v, err := t.Get(r.MaxRef); err == nil {
			max = v
		}
	}
	if r.IncRef != "" {
		if v, err := t.Get(r.IncRef); err == nil {
			inc = v
		}
	}
	return clamp(value, min, max, inc)
}

// SetSymbolic writes an Enumeration register by symbolic name.
func (t *Table) SetSymbolic(name, symbol string) error {
	r, err := t.resolve(name)
	if err != nil {
		return err
	}
	if r.Kind != KindEnumeration {
		return fmt.Errorf("genicam: %q is not an Enumeration", name)
	}
	v, ok := r.EnumValues[symbol]
	if !ok {
		return fmt.Errorf("genicam: %q has no enum value %q", name, symbol)
	}
	return t.Set(name, float64(v))
}

func parsedFormula(cache *Expr, formula string) (Expr, error) {
	if *cache != nil {
		return *cache, nil
	}
	ast, err := parseExpr(formula)
	if err != nil {
		return nil, err
	}
	*cache = ast
	return ast, nil
}

func (t *Table) env(r *Reg) map[string]float64 {
	env := make(map[string]float64, len(r.Deps))
	for _, dep := range r.Deps {
		v, err := t.Get(dep)
		if err == nil {
			env[dep] = v
		}
	}
	return env
}

func (t *Table) evalFormula(r *Reg, cache *Expr, formula string, pseudo string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ast, err := parsedFormula(cache, formula)
	if err != nil {
		return 0, err
	}
	env := t.env(r)
	if pseudo != "" {
		// TO direction reads; FROM direction supplied by caller in Set.
		if pseudo == "TO" {
			// no extra binding needed; TO formulas reference deps directly
		}
	}
	return ast.eval(env)
}

// readIntReg performs the single port read + endian assembly + sign
// extension + bit-window extraction described in §4.3 step 3.
func (t *Table) readIntReg(r *Reg) (int64, error) {
	addr := r.Address
	if r.PAddress != "" {
		pv, err := t.Get(r.PAddress)
		if err != nil {
			return 0, err
		}
		addr = int64(pv)
	}
	if r.OffsetExprName != "" {
		off, err := t.Get(r.OffsetExprName)
		if err != nil {
			return 0, err
		}
		addr += int64(off)
	}
	raw, err := t.port.ReadPort(addr, r.Length)
	if err != nil {
		if readNoData(err) {
			return 0, nil
		}
		return 0, err
	}
	v := assembleInt(raw, r.Endian, r.Signed)
	if lsb, msb, ok := r.bitWindowLen(); ok {
		mask := int64(1)<<(uint(msb-lsb+1)) - 1
		v = (v >> uint(lsb)) & mask
	}
	return v, nil
}

// writeIntReg performs read-modify-write over the bit window; WO registers
// skip the read (§4.3 step 3).
func (t *Table) writeIntReg(r *Reg, value int64) error {
	addr := r.Address
	if r.PAddress != "" {
		pv, err := t.Get(r.PAddress)
		if err != nil {
			return err
		}
		addr = int64(pv)
	}

	lsb, msb, hasWindow := r.bitWindowLen()
	var out int64
	if r.Access != WO && hasWindow {
		raw, err := t.port.ReadPort(addr, r.Length)
		if err != nil && !readNoData(err) {
			return err
		}
		cur := assembleInt(raw, r.Endian, false)
		mask := int64(1)<<(uint(msb-lsb+1)) - 1
		cur &^= mask << uint(lsb)
		out = cur | ((value & mask) << uint(lsb))
	} else if hasWindow {
		mask := int64(1)<<(uint(msb-lsb+1)) - 1
		out = (value & mask) << uint(lsb)
	} else {
		out = value
	}

	buf := disassembleInt(out, r.Length, r.Endian)
	return t.port.WritePort(addr, buf)
}

func assembleInt(raw []byte, e Endian, signed bool) int64 {
	buf := make([]byte, 8)
	if e == BigEndian {
		copy(buf[8-len(raw):], raw)
		v := int64(binary.BigEndian.Uint64(buf))
		if signed && len(raw) < 8 {
			v = signExtend(v, len(raw)*8)
		}
		return v
	}
	copy(buf, raw)
	v := int64(binary.LittleEndian.Uint64(buf))
	if signed && len(raw) < 8 {
		v = signExtend(v, len(raw)*8)
	}
	return v
}

func signExtend(v int64, bits int) int64 {
	shift := uint(64 - bits)
	return (v << shift) >> shift
}

func disassembleInt(v int64, length int, e Endian) []byte {
	buf := make([]byte, 8)
	if e == BigEndian {
		binary.BigEndian.PutUint64(buf, uint64(v))
		return buf[8-length:]
	}
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf[:length]
}

func floatFromBits(bits int64, length int) float64 {
	if length == 4 {
		return float64(int32ToFloat32(int32(bits)))
	}
	return int64ToFloat64(bits)
}

func bitsFromFloat(f float64, length int) int64 {
	if length == 4 {
		return int64(float32ToInt32(float32(f)))
	}
	return float64ToInt64(f)
}
