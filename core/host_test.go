package core

import "testing"

func TestAddReportsCarryAndOverflow(t *testing.T) {
	var host SoftwareHost

	res := host.Add(0x7FFFFFFF, 0x7FFFFFFF, 32, false)
	if res.Value != 0xFFFFFFFE {
		t.Errorf("expected value 0xFFFFFFFE, got %#x", res.Value)
	}
	if !res.Overflow {
		t.Error("expected overflow")
	}
	if res.Carry {
		t.Error("expected no carry")
	}

	res = host.Add(0xFFFFFFFF, 1, 32, false)
	if res.Value != 0 {
		t.Errorf("expected value 0, got %#x", res.Value)
	}
	if !res.Carry {
		t.Error("expected carry")
	}
	if res.Overflow {
		t.Error("expected no overflow")
	}
}

func TestAddWithCarryAccumulatesInputFlag(t *testing.T) {
	var host SoftwareHost
	res := host.Add(0xFFFFFFFF, 0, 32, true)
	if res.Value != 0 {
		t.Errorf("expected value 0, got %#x", res.Value)
	}
	if !res.Carry {
		t.Error("expected carry")
	}
}

func TestSubReportsBorrowAndOverflow(t *testing.T) {
	var host SoftwareHost

	res := host.Sub(0, 1, 32)
	if res.Value != 0xFFFFFFFF {
		t.Errorf("expected value 0xFFFFFFFF, got %#x", res.Value)
	}
	if res.Carry {
		t.Error("expected carry clear (0 - 1 borrows)")
	}
	if res.Overflow {
		t.Error("expected no overflow")
	}

	res = host.Sub(0x80000000, 1, 32)
	if res.Value != 0x7FFFFFFF {
		t.Errorf("expected value 0x7FFFFFFF, got %#x", res.Value)
	}
	if !res.Overflow {
		t.Error("expected overflow")
	}
}

func TestMulReturnsHighBits(t *testing.T) {
	var host SoftwareHost

	res := host.Mul(0x100000000, 2, 64)
	if res.Low != 0x200000000 {
		t.Errorf("expected low 0x200000000, got %#x", res.Low)
	}
	if res.High != 0 {
		t.Errorf("expected high 0, got %#x", res.High)
	}

	res = host.Mul(0xFFFFFFFF, 0xFFFFFFFF, 32)
	if res.Low != 1 {
		t.Errorf("expected low 1, got %#x", res.Low)
	}
	if res.High != 0xFFFFFFFE {
		t.Errorf("expected high 0xFFFFFFFE, got %#x", res.High)
	}
}

func TestMulNarrowWidth(t *testing.T) {
	var host SoftwareHost
	res := host.Mul(0xFF, 0xFF, 8)
	if res.Low != 0x01 {
		t.Errorf("expected low 0x01, got %#x", res.Low)
	}
	if res.High != 0xFE {
		t.Errorf("expected high 0xFE, got %#x", res.High)
	}
}
