package genicam

import "testing"

// fakePort is an in-memory PortIO backing store for register unit tests,
// standing in for a real GenTL device.
type fakePort struct {
	mem map[int64][]byte
}

func newFakePort() *fakePort { return &fakePort{mem: make(map[int64][]byte)} }

func (p *fakePort) ReadPort(address int64, length int) ([]byte, error) {
	buf, ok := p.mem[address]
	if !ok {
		return make([]byte, length), nil
	}
	out := make([]byte, length)
	copy(out, buf)
	return out, nil
}

func (p *fakePort) WritePort(address int64, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	p.mem[address] = buf
	return nil
}

func TestIntRegRoundTrip(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "Width", Kind: KindIntReg, Access: RW, Address: 0x100, Length: 4, Endian: BigEndian})
	if err := table.Set("Width", 640); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := table.Get("Width")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 640 {
		t.Errorf("Width = %v, want 640", v)
	}
}

func TestMaskedIntRegBitWindow(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{
		Name: "Mode", Kind: KindMaskedIntReg, Access: RW,
		Address: 0x200, Length: 4, Endian: LittleEndian, LSB: 4, MSB: 7,
	})
	// Pre-seed neighboring bits so read-modify-write must preserve them.
	port.mem[0x200] = []byte{0xFF, 0x00, 0x00, 0x00}
	if err := table.Set("Mode", 0x3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := table.Get("Mode")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 3 {
		t.Errorf("Mode = %v, want 3", v)
	}
	// Bits outside the window (0-3, 8-31) must be untouched.
	if port.mem[0x200][0]&0x0F != 0x0F {
		t.Errorf("low nibble clobbered: %08b", port.mem[0x200][0])
	}
}

func TestAliasLinkResolution(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "Height", Kind: KindIntReg, Access: RW, Address: 0x300, Length: 4, Endian: BigEndian})
	table.Add(&Reg{Name: "HeightAlias", Kind: KindAliasLink, AliasOf: "Height"})
	if err := table.Set("HeightAlias", 480); err != nil {
		t.Fatalf("Set via alias: %v", err)
	}
	v, err := table.Get("Height")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 480 {
		t.Errorf("Height = %v, want 480", v)
	}
}

func TestAliasCycleDetected(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "A", Kind: KindAliasLink, AliasOf: "B"})
	table.Add(&Reg{Name: "B", Kind: KindAliasLink, AliasOf: "A"})
	if _, err := table.Get("A"); err == nil {
		t.Errorf("expected alias cycle error, got nil")
	}
}

func TestIntSwissKnifeFormula(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "Base", Kind: KindIntReg, Access: RW, Address: 0x400, Length: 4, Endian: BigEndian})
	table.Add(&Reg{Name: "Derived", Kind: KindIntSwissKnife, Formula: "Base * 2 + 1", Deps: []string{"Base"}})
	if err := table.Set("Base", 10); err != nil {
		t.Fatalf("Set Base: %v", err)
	}
	v, err := table.Get("Derived")
	if err != nil {
		t.Fatalf("Get Derived: %v", err)
	}
	if v != 21 {
		t.Errorf("Derived = %v, want 21", v)
	}
}

func TestConverterWritesThroughUnderlying(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "Underlying", Kind: KindIntReg, Access: RW, Address: 0x500, Length: 4, Endian: BigEndian})
	table.Add(&Reg{
		Name: "Scaled", Kind: KindConverter,
		FormulaFrom: "FROM / 2", FormulaTo: "Underlying * 2",
		Deps: []string{"Underlying"},
	})
	if err := table.Set("Scaled", 20); err != nil {
		t.Fatalf("Set Scaled: %v", err)
	}
	under, err := table.Get("Underlying")
	if err != nil {
		t.Fatalf("Get Underlying: %v", err)
	}
	if under != 10 {
		t.Errorf("Underlying = %v, want 10", under)
	}
	scaled, err := table.Get("Scaled")
	if err != nil {
		t.Fatalf("Get Scaled: %v", err)
	}
	if scaled != 20 {
		t.Errorf("Scaled = %v, want 20", scaled)
	}
}

func TestEnumerationSymbolic(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "PixelFormatRaw", Kind: KindIntReg, Access: RW, Address: 0x600, Length: 4, Endian: BigEndian})
	table.Add(&Reg{
		Name: "PixelFormat", Kind: KindEnumeration, EnumOn: "PixelFormatRaw",
		EnumValues: map[string]int64{"Mono8": 1, "RGB8": 2},
	})
	if err := table.SetSymbolic("PixelFormat", "RGB8"); err != nil {
		t.Fatalf("SetSymbolic: %v", err)
	}
	v, err := table.Get("PixelFormatRaw")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 2 {
		t.Errorf("PixelFormatRaw = %v, want 2", v)
	}
}

func TestIntegerClampedAgainstMinMaxInc(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "Min", Kind: KindIntegerLiteral, IntLit: 0})
	table.Add(&Reg{Name: "Max", Kind: KindIntegerLiteral, IntLit: 100})
	table.Add(&Reg{Name: "Inc", Kind: KindIntegerLiteral, IntLit: 10})
	table.Add(&Reg{
		Name: "Gain", Kind: KindInteger, Access: RW,
		MinRef: "Min", MaxRef: "Max", IncRef: "Inc",
	})
	if err := table.Set("Gain", 107); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := table.Get("Gain")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 100 {
		t.Errorf("Gain clamped = %v, want 100", v)
	}
}

func TestValidateRejectsUnresolvedDependency(t *testing.T) {
	port := newFakePort()
	table := NewTable(port)
	table.Add(&Reg{Name: "Broken", Kind: KindIntSwissKnife, Formula: "Missing", Deps: []string{"Missing"}})
	if err := table.Validate(); err == nil {
		t.Errorf("expected Validate to reject an unresolved dependency")
	}
}
