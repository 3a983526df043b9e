package stdfrec_test

import (
	"encoding/binary"
	"testing"

	"github.com/foundry/stdfingest/internal/stdfrec"
	"github.com/foundry/stdfingest/internal/stdftest"
)

func TestDecodeFAR(t *testing.T) {
	raw := stdftest.NewPayload(binary.NativeEndian).U1(2).U1(4).Bytes()
	far := stdfrec.DecodeFAR(raw, binary.NativeEndian)
	if far.CPUType != 2 || far.STDFVer != 4 {
		t.Fatalf("DecodeFAR = %+v, want CPUType=2 STDFVer=4", far)
	}
}

func TestDecodeMIR(t *testing.T) {
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(1000).U4(2000).U1(7).C1('P').C1('R').C1('X').U2(500).C1('C').Bytes()
	mir := stdfrec.DecodeMIR(raw, binary.NativeEndian)
	if mir.SetupT != 1000 || mir.StartT != 2000 || mir.StatNum != 7 {
		t.Fatalf("DecodeMIR = %+v", mir)
	}
	if mir.ModeCod != 'P' || mir.RtstCod != 'R' || mir.ProtCod != 'X' || mir.CmodCod != 'C' {
		t.Fatalf("DecodeMIR flag bytes = %+v", mir)
	}
	if mir.BurnTim != 500 {
		t.Fatalf("DecodeMIR.BurnTim = %d, want 500", mir.BurnTim)
	}
}

func TestDecodePTR_WithLimits(t *testing.T) {
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(42).U1(1).U1(3).U1(0x00).U1(0).R4(3.14).Cn("vddq").Cn("").
		U1(0x02).I1(-3).I1(0).I1(0).R4(1.0).R4(5.0).Cn("V").Bytes()
	ptr := stdfrec.DecodePTR(raw, binary.NativeEndian)

	if ptr.TestNum != 42 || ptr.HeadNum != 1 || ptr.SiteNum != 3 {
		t.Fatalf("DecodePTR key fields = %+v", ptr)
	}
	if ptr.Result != 3.14 {
		t.Fatalf("DecodePTR.Result = %v, want 3.14", ptr.Result)
	}
	if ptr.TestTxt != "vddq" {
		t.Fatalf("DecodePTR.TestTxt = %q", ptr.TestTxt)
	}
	if !ptr.HasLims {
		t.Fatal("DecodePTR.HasLims = false, want true")
	}
	if ptr.LoLimit != 1.0 || ptr.HiLimit != 5.0 || ptr.Units != "V" || ptr.ResScal != -3 {
		t.Fatalf("DecodePTR limit fields = %+v", ptr)
	}
}

func TestDecodePTR_NoOptionalTail(t *testing.T) {
	// Only the required fields are present; the optional OPT_FLAG/limits
	// tail is entirely absent, as a real writer may omit it.
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(7).U1(1).U1(1).U1(0x40).U1(0).R4(0).Cn("t").Cn("").Bytes()
	ptr := stdfrec.DecodePTR(raw, binary.NativeEndian)
	if ptr.HasLims {
		t.Fatal("DecodePTR.HasLims = true for a payload with no optional tail")
	}
}

// TestDecodeMPR_RTNSTATAlignment exercises the bug fixed in this engine:
// RTN_STAT has no self-contained length prefix (its length is derived
// from the preceding RTN_ICNT field), so a naive length-prefixed read
// would misalign every field that follows it.
func TestDecodeMPR_RTNSTATAlignment(t *testing.T) {
	rtnIcnt := uint16(3) // 3 nibbles -> 2 packed bytes
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(99).U1(1).U1(2).U1(0).U1(0).
		U2(rtnIcnt).U2(2). // RTN_ICNT, RSLT_CNT
		Raw([]byte{0xAB, 0xCD}).
		R4(1.5).R4(2.5). // RTN_RSLT[0..1]
		Cn("func1").Cn("").
		U1(0x02).I1(0).I1(0).I1(0).R4(0).R4(10).Cn("mV").
		Bytes()

	mpr := stdfrec.DecodeMPR(raw, binary.NativeEndian)
	if mpr.TestNum != 99 || mpr.HeadNum != 1 || mpr.SiteNum != 2 {
		t.Fatalf("DecodeMPR key fields = %+v", mpr)
	}
	if mpr.TestTxt != "func1" {
		t.Fatalf("DecodeMPR.TestTxt = %q, want %q (cursor misaligned)", mpr.TestTxt, "func1")
	}
	if !mpr.HasLims || mpr.HiLimit != 10 || mpr.Units != "mV" {
		t.Fatalf("DecodeMPR limit fields = %+v", mpr)
	}

	value, ok := stdfrec.DecodeMPRResult(raw, binary.NativeEndian)
	if !ok || value != 1.5 {
		t.Fatalf("DecodeMPRResult = (%v, %v), want (1.5, true)", value, ok)
	}
}

func TestDecodeMPRResult_NoResults(t *testing.T) {
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(1).U1(0).U1(0).U1(0).U1(0).U2(0).U2(0).Bytes()
	_, ok := stdfrec.DecodeMPRResult(raw, binary.NativeEndian)
	if ok {
		t.Fatal("DecodeMPRResult ok = true for RSLT_CNT=0")
	}
}

func TestDecodeFTR(t *testing.T) {
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(5).U1(1).U1(1).U1(0x40).U1(0).Cn("cont_test").Bytes()
	ftr := stdfrec.DecodeFTR(raw, binary.NativeEndian)
	if ftr.TestNum != 5 || ftr.TestTxt != "cont_test" || ftr.TestFlg != 0x40 {
		t.Fatalf("DecodeFTR = %+v", ftr)
	}
}

func TestCodeString(t *testing.T) {
	if got := stdfrec.CodePTR.String(); got != "PTR" {
		t.Fatalf("CodePTR.String() = %q, want PTR", got)
	}
	if got := stdfrec.Code(9999).String(); got != "UNK" {
		t.Fatalf("unknown code String() = %q, want UNK", got)
	}
}

func TestIsEnqueued(t *testing.T) {
	if !stdfrec.IsEnqueued(stdfrec.CodePRR) {
		t.Fatal("PRR should be enqueued")
	}
	if stdfrec.IsEnqueued(stdfrec.CodeATR) {
		t.Fatal("ATR should not be enqueued")
	}
}
