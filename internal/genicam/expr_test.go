package genicam

import "testing"

func evalStr(t *testing.T, src string, env map[string]float64) float64 {
	t.Helper()
	ast, err := parseExpr(src)
	if err != nil {
		t.Fatalf("parseExpr(%q): %v", src, err)
	}
	v, err := ast.eval(env)
	if err != nil {
		t.Fatalf("eval(%q): %v", src, err)
	}
	return v
}

func TestExprArithmeticPrecedence(t *testing.T) {
	v := evalStr(t, "2 + 3 * 4", nil)
	if v != 14 {
		t.Errorf("2 + 3 * 4 = %v, want 14", v)
	}
}

func TestExprPowerRightAssociative(t *testing.T) {
	// 2 ** (3 ** 2) == 512, not (2**3)**2 == 64
	v := evalStr(t, "2 ** 3 ** 2", nil)
	if v != 512 {
		t.Errorf("2 ** 3 ** 2 = %v, want 512", v)
	}
}

func TestExprVariableRef(t *testing.T) {
	v := evalStr(t, "GAIN * 2", map[string]float64{"GAIN": 3})
	if v != 6 {
		t.Errorf("GAIN * 2 = %v, want 6", v)
	}
}

func TestExprTernary(t *testing.T) {
	v := evalStr(t, "1 ? 10 : 20", nil)
	if v != 10 {
		t.Errorf("1 ? 10 : 20 = %v, want 10", v)
	}
	v = evalStr(t, "0 ? 10 : 20", nil)
	if v != 20 {
		t.Errorf("0 ? 10 : 20 = %v, want 20", v)
	}
}

func TestExprUnaryMinus(t *testing.T) {
	v := evalStr(t, "-5 + 3", nil)
	if v != -2 {
		t.Errorf("-5 + 3 = %v, want -2", v)
	}
}

func TestExprFunctionCall(t *testing.T) {
	v := evalStr(t, "ROUND(2.6)", nil)
	if v != 3 {
		t.Errorf("ROUND(2.6) = %v, want 3", v)
	}
}

func TestExprUndefinedVariable(t *testing.T) {
	if _, err := parseExpr("UNKNOWN"); err != nil {
		t.Fatalf("parseExpr(UNKNOWN): %v", err)
	}
	ast, _ := parseExpr("UNKNOWN")
	if _, err := ast.eval(map[string]float64{}); err == nil {
		t.Errorf("eval of undefined variable should error")
	}
}
