package genicam

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ParseRegisterXML parses a GenICam register description document into a
// closed symbol table (§3, §4.3 step 2). antchfx/xmlquery is used rather
// than encoding/xml because the register description is an arbitrarily
// nested, attribute-and-child-element mix best walked with DOM/XPath
// selectors (github.com/helixml/helix requires antchfx/xmlquery
// transitively, grounding its use here).
func ParseRegisterXML(xmlDoc []byte, port PortIO) (*Table, error) {
	doc, err := xmlquery.Parse(strings.NewReader(string(xmlDoc)))
	if err != nil {
		return nil, fmt.Errorf("genicam: parsing register XML: %w", err)
	}
	table := NewTable(port)

	root := xmlquery.FindOne(doc, "//RegisterDescription")
	if root == nil {
		root = doc
	}
	for _, n := range xmlquery.Find(root, "./*") {
		reg, err := parseNode(n)
		if err != nil {
			return nil, err
		}
		if reg != nil {
			table.Add(reg)
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func childText(n *xmlquery.Node, tag string) (string, bool) {
	c := xmlquery.FindOne(n, "./"+tag)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.InnerText()), true
}

func childTextOr(n *xmlquery.Node, tag, def string) string {
	if v, ok := childText(n, tag); ok {
		return v
	}
	return def
}

func attrOr(n *xmlquery.Node, name, def string) string {
	v := n.SelectAttr(name)
	if v == "" {
		return def
	}
	return v
}

func parseIntLiteral(s string) int64 {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, _ := strconv.ParseInt(s[2:], 16, 64)
		return v
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseAccess(s string) Access {
	switch strings.ToUpper(s) {
	case "RO":
		return RO
	case "WO":
		return WO
	default:
		return RW
	}
}

func parseEndian(n *xmlquery.Node) Endian {
	if v, ok := childText(n, "Endianess"); ok && strings.EqualFold(v, "BigEndian") {
		return BigEndian
	}
	if v, ok := childText(n, "Endianness"); ok && strings.EqualFold(v, "BigEndian") {
		return BigEndian
	}
	return LittleEndian
}

func splitDeps(n *xmlquery.Node) []string {
	var deps []string
	for _, p := range xmlquery.Find(n, "./pVariable") {
		deps = append(deps, strings.TrimSpace(p.InnerText()))
	}
	return deps
}

func parseBitWindow(n *xmlquery.Node) (lsb, msb int) {
	if bit, ok := childText(n, "Bit"); ok {
		b, _ := strconv.Atoi(bit)
		return b, b
	}
	lsbStr, hasLSB := childText(n, "LSB")
	msbStr, hasMSB := childText(n, "MSB")
	if hasLSB && hasMSB {
		l, _ := strconv.Atoi(lsbStr)
		m, _ := strconv.Atoi(msbStr)
		return l, m
	}
	return 0, -1
}

func parseNode(n *xmlquery.Node) (*Reg, error) {
	name := attrOr(n, "Name", "")
	if name == "" {
		return nil, nil
	}
	r := &Reg{Name: name, MSB: -1, Endian: LittleEndian}

	switch n.Data {
	case "Integer":
		r.Kind = KindInteger
		if ref, ok := childText(n, "pValue"); ok {
			r.AliasOf = ref
			r.Kind = KindAliasLink
		}
		r.MinRef, _ = childText(n, "pMin")
		r.MaxRef, _ = childText(n, "pMax")
		r.IncRef, _ = childText(n, "pInc")
		r.IntLit = parseIntLiteral(childTextOr(n, "Value", "0"))
	case "Float":
		r.Kind = KindFloat
		r.MinRef, _ = childText(n, "pMin")
		r.MaxRef, _ = childText(n, "pMax")
		r.IncRef, _ = childText(n, "pInc")
	case "IntReg":
		r.Kind = KindIntReg
		fillRegisterFields(n, r)
	case "MaskedIntReg":
		r.Kind = KindMaskedIntReg
		fillRegisterFields(n, r)
		r.LSB, r.MSB = parseBitWindow(n)
	case "FloatReg":
		r.Kind = KindFloatReg
		fillRegisterFields(n, r)
	case "StringReg":
		r.Kind = KindStringReg
		fillRegisterFields(n, r)
	case "StructEntry":
		r.Kind = KindStructEntry
		fillRegisterFields(n, r)
		r.LSB, r.MSB = parseBitWindow(n)
	case "IntSwissKnife":
		r.Kind = KindIntSwissKnife
		r.Formula = childTextOr(n, "Formula", "0")
		r.Deps = splitDeps(n)
	case "SwissKnife":
		r.Kind = KindSwissKnife
		r.Formula = childTextOr(n, "Formula", "0")
		r.Deps = splitDeps(n)
	case "IntConverter":
		r.Kind = KindIntConverter
		r.FormulaFrom = childTextOr(n, "FormulaFrom", "FROM")
		r.FormulaTo = childTextOr(n, "FormulaTo", "TO")
		r.Deps = splitDeps(n)
	case "Converter":
		r.Kind = KindConverter
		r.FormulaFrom = childTextOr(n, "FormulaFrom", "FROM")
		r.FormulaTo = childTextOr(n, "FormulaTo", "TO")
		r.Deps = splitDeps(n)
	case "Enumeration":
		r.Kind = KindEnumeration
		r.EnumOn, _ = childText(n, "pValue")
		r.EnumValues = map[string]int64{}
		for _, e := range xmlquery.Find(n, "./EnumEntry") {
			entryName := attrOr(e, "Name", "")
			val := parseIntLiteral(childTextOr(e, "Value", "0"))
			r.EnumValues[entryName] = val
		}
	case "Command":
		r.Kind = KindCommand
		fillRegisterFields(n, r)
	default:
		return nil, nil
	}
	r.Access = parseAccess(childTextOr(n, "AccessMode", "RW"))
	if pa, ok := childText(n, "pAddress"); ok {
		r.PAddress = pa
	}
	return r, nil
}

func fillRegisterFields(n *xmlquery.Node, r *Reg) {
	if addr, ok := childText(n, "Address"); ok {
		r.Address = parseIntLiteral(addr)
	}
	if l, ok := childText(n, "Length"); ok {
		v, _ := strconv.Atoi(l)
		r.Length = v
	} else {
		r.Length = 4
	}
	r.Endian = parseEndian(n)
	r.Signed = strings.EqualFold(childTextOr(n, "Sign", "Unsigned"), "Signed")
	if pa, ok := childText(n, "pAddress"); ok {
		r.PAddress = pa
	}
}
