package stdfrec

import "encoding/binary"

// FAR is the File Attributes Record, always the first record in a
// conforming STDF file.
type FAR struct {
	CPUType uint8
	STDFVer uint8
}

// MIR is the Master Information Record.
type MIR struct {
	SetupT  uint32
	StartT  uint32
	StatNum uint8
	ModeCod byte
	RtstCod byte
	ProtCod byte
	BurnTim uint16
	CmodCod byte
}

// PMR is the Pin Map Record. Only the fields needed to maintain the
// pin-index-to-name correlation are decoded; the view is discarded by the
// summarizer without being persisted (§4.3).
type PMR struct {
	PMRIndex uint16
	ChanType uint16
	ChanNam  string
	PhysNam  string
	LogNam   string
}

// PIR is the Part Information Record.
type PIR struct {
	HeadNum uint8
	SiteNum uint8
}

// PRR is the Part Results Record.
type PRR struct {
	HeadNum uint8
	SiteNum uint8
	PartFlg uint8
	NumTest uint16
	HardBin uint16
	SoftBin uint16
	XCoord  int16
	YCoord  int16
	TestT   uint32
	PartID  string
}

// PTR is the Parametric Test Record.
type PTR struct {
	TestNum  uint32
	HeadNum  uint8
	SiteNum  uint8
	TestFlg  uint8
	Result   float32
	TestTxt  string
	ResScal  int8
	LoLimit  float32
	HiLimit  float32
	Units    string
	OptFlag  uint8
	HasLims  bool
}

// MPR is the Multiple-Result Parametric Record. The view carries no
// RTN_RSLT values (DecodeMPRResult returns the first one); it exists for
// the first-seen-test-info cache the same way PTR's does.
type MPR struct {
	TestNum uint32
	HeadNum uint8
	SiteNum uint8
	TestFlg uint8
	TestTxt string
	ResScal int8
	LoLimit float32
	HiLimit float32
	Units   string
	OptFlag uint8
	HasLims bool
}

// FTR is the Functional Test Record.
type FTR struct {
	TestNum uint32
	HeadNum uint8
	SiteNum uint8
	TestFlg uint8
	TestTxt string
}

// HBR is the Hard Bin Record.
type HBR struct {
	HeadNum uint8
	SiteNum uint8
	HBinNum uint16
	HBinCnt uint32
	HBinPF  byte
	HBinNam string
}

// SBR is the Soft Bin Record.
type SBR struct {
	HeadNum uint8
	SiteNum uint8
	SBinNum uint16
	SBinCnt uint32
	SBinPF  byte
	SBinNam string
}

// WIR is the Wafer Information Record.
type WIR struct {
	HeadNum uint8
	WaferID string
}

// WRR is the Wafer Results Record.
type WRR struct {
	HeadNum  uint8
	PartCnt  uint32
	RtstCnt  uint32
	AbrtCnt  uint32
	GoodCnt  uint32
	FuncCnt  uint32
	WaferID  string
	FabwfID  string
	FrameID  string
	MaskID   string
	UsrDesc  string
	ExcDesc  string
}

// WCR is the Wafer Configuration Record.
type WCR struct {
	WaferSize float32
	DieHeight float32
	DieWidth  float32
	WfUnits   uint8
	WfFlat    byte
	CenterX   int16
	CenterY   int16
	PosX      byte
	PosY      byte
}

// TSR is the Test Synopsis Record.
type TSR struct {
	TestNum uint32
	FailCnt uint32
}

// PCR is the Part Count Record.
type PCR struct {
	HeadNum uint8
	SiteNum uint8
	PartCnt uint32
	RtstCnt uint32
	AbrtCnt uint32
	GoodCnt uint32
	FuncCnt uint32
}

// missingU4 is the STDF sentinel for "field not present" on U*4 count
// fields (all bits set).
const missingU4 = 0xFFFFFFFF

// missingCoord is the sentinel for PRR X_COORD/Y_COORD ("not probed").
const missingCoord = -32768

// missingBurnTim is the sentinel for MIR.BURN_TIM ("not specified").
const missingBurnTim = 65535

// DecodeFAR decodes a FAR payload. order must already reflect the
// detector's decision (§4.1); callers pass the detected order explicitly
// rather than through a process-wide flag.
func DecodeFAR(raw []byte, order binary.ByteOrder) FAR {
	c := newCursor(raw, order)
	return FAR{CPUType: c.u1(), STDFVer: c.u1()}
}

func DecodeMIR(raw []byte, order binary.ByteOrder) MIR {
	c := newCursor(raw, order)
	m := MIR{}
	m.SetupT = c.u4()
	m.StartT = c.u4()
	m.StatNum = c.u1()
	m.ModeCod = c.c1()
	m.RtstCod = c.c1()
	m.ProtCod = c.c1()
	m.BurnTim = c.u2()
	m.CmodCod = c.c1()
	return m
}

func DecodePMR(raw []byte, order binary.ByteOrder) PMR {
	c := newCursor(raw, order)
	p := PMR{}
	p.PMRIndex = c.u2()
	p.ChanType = c.u2()
	p.ChanNam = c.cn()
	p.PhysNam = c.cn()
	p.LogNam = c.cn()
	return p
}

func DecodePIR(raw []byte, order binary.ByteOrder) PIR {
	c := newCursor(raw, order)
	return PIR{HeadNum: c.u1(), SiteNum: c.u1()}
}

func DecodePRR(raw []byte, order binary.ByteOrder) PRR {
	c := newCursor(raw, order)
	p := PRR{}
	p.HeadNum = c.u1()
	p.SiteNum = c.u1()
	p.PartFlg = c.u1()
	p.NumTest = c.u2()
	p.HardBin = c.u2()
	p.SoftBin = c.u2()
	p.XCoord = c.i2()
	p.YCoord = c.i2()
	p.TestT = c.u4()
	p.PartID = c.cn()
	return p
}

func DecodePTR(raw []byte, order binary.ByteOrder) PTR {
	c := newCursor(raw, order)
	p := PTR{}
	p.TestNum = c.u4()
	p.HeadNum = c.u1()
	p.SiteNum = c.u1()
	p.TestFlg = c.u1()
	_ = c.u1() // PARM_FLG, unused by this engine
	p.Result = c.r4()
	p.TestTxt = c.cn()
	_ = c.cn() // ALARM_ID, unused
	before := c.pos
	optFlag := c.u1()
	p.OptFlag = optFlag
	p.ResScal = c.i1()
	_ = c.i1() // LLM_SCAL
	_ = c.i1() // HLM_SCAL
	p.LoLimit = c.r4()
	p.HiLimit = c.r4()
	p.Units = c.cn()
	p.HasLims = !c.missing && c.pos > before
	return p
}

func DecodeMPR(raw []byte, order binary.ByteOrder) MPR {
	c := newCursor(raw, order)
	m := MPR{}
	m.TestNum = c.u4()
	m.HeadNum = c.u1()
	m.SiteNum = c.u1()
	m.TestFlg = c.u1()
	_ = c.u1() // PARM_FLG
	rtnIcnt := c.u2()
	rsltCnt := c.u2()
	c.skipn((int(rtnIcnt) + 1) / 2) // RTN_STAT, packed nibbles, not persisted
	for i := uint16(0); i < rsltCnt; i++ {
		c.r4() // RTN_RSLT array; bulk retrieval goes through the parametric reader
	}
	_ = rtnIcnt
	m.TestTxt = c.cn()
	_ = c.cn() // ALARM_ID
	before := c.pos
	m.OptFlag = c.u1()
	m.ResScal = c.i1()
	_ = c.i1() // LLM_SCAL
	_ = c.i1() // HLM_SCAL
	m.LoLimit = c.r4()
	m.HiLimit = c.r4()
	m.Units = c.cn()
	m.HasLims = !c.missing && c.pos > before
	return m
}

// DecodeMPRResult returns the first value of an MPR's RTN_RSLT array.
// The parametric reader does not use it: for MPR rows it surfaces
// TEST_FLG. ok is false when RSLT_CNT is zero.
func DecodeMPRResult(raw []byte, order binary.ByteOrder) (value float32, ok bool) {
	c := newCursor(raw, order)
	_ = c.u4() // TEST_NUM
	_ = c.u1() // HEAD_NUM
	_ = c.u1() // SITE_NUM
	_ = c.u1() // TEST_FLG
	_ = c.u1() // PARM_FLG
	rtnIcnt := c.u2()
	rsltCnt := c.u2()
	c.skipn((int(rtnIcnt) + 1) / 2) // RTN_STAT
	if rsltCnt == 0 {
		return 0, false
	}
	return c.r4(), true
}

func DecodeFTR(raw []byte, order binary.ByteOrder) FTR {
	c := newCursor(raw, order)
	f := FTR{}
	f.TestNum = c.u4()
	f.HeadNum = c.u1()
	f.SiteNum = c.u1()
	f.TestFlg = c.u1()
	_ = c.u1() // OPT_FLAG is present in FTR but this engine stores no scale/limits for FTR
	f.TestTxt = c.cn()
	return f
}

func DecodeHBR(raw []byte, order binary.ByteOrder) HBR {
	c := newCursor(raw, order)
	h := HBR{}
	h.HeadNum = c.u1()
	h.SiteNum = c.u1()
	h.HBinNum = c.u2()
	h.HBinCnt = c.u4()
	h.HBinPF = c.c1()
	h.HBinNam = c.cn()
	return h
}

func DecodeSBR(raw []byte, order binary.ByteOrder) SBR {
	c := newCursor(raw, order)
	s := SBR{}
	s.HeadNum = c.u1()
	s.SiteNum = c.u1()
	s.SBinNum = c.u2()
	s.SBinCnt = c.u4()
	s.SBinPF = c.c1()
	s.SBinNam = c.cn()
	return s
}

func DecodeWIR(raw []byte, order binary.ByteOrder) WIR {
	c := newCursor(raw, order)
	w := WIR{}
	w.HeadNum = c.u1()
	_ = c.u1() // SITE_GRP, not tracked
	_ = c.u4() // START_T, not persisted (only WaferIndex/WaferID matter here)
	w.WaferID = c.cn()
	return w
}

func DecodeWRR(raw []byte, order binary.ByteOrder) WRR {
	c := newCursor(raw, order)
	w := WRR{}
	w.HeadNum = c.u1()
	_ = c.u1() // SITE_GRP
	_ = c.u4() // FINISH_T
	w.PartCnt = c.u4()
	w.RtstCnt = c.u4()
	w.AbrtCnt = c.u4()
	w.GoodCnt = c.u4()
	w.FuncCnt = c.u4()
	w.WaferID = c.cn()
	w.FabwfID = c.cn()
	w.FrameID = c.cn()
	w.MaskID = c.cn()
	w.UsrDesc = c.cn()
	w.ExcDesc = c.cn()
	return w
}

func DecodeWCR(raw []byte, order binary.ByteOrder) WCR {
	c := newCursor(raw, order)
	w := WCR{}
	w.WaferSize = c.r4()
	w.DieHeight = c.r4()
	w.DieWidth = c.r4()
	w.WfUnits = c.u1()
	w.WfFlat = c.c1()
	w.CenterX = c.i2()
	w.CenterY = c.i2()
	w.PosX = c.c1()
	w.PosY = c.c1()
	return w
}

func DecodeTSR(raw []byte, order binary.ByteOrder) TSR {
	c := newCursor(raw, order)
	t := TSR{}
	_ = c.u1() // HEAD_NUM
	_ = c.u1() // SITE_NUM
	_ = c.c1() // TEST_TYP
	t.TestNum = c.u4()
	_ = c.u4() // EXEC_CNT
	t.FailCnt = c.u4()
	return t
}

func DecodePCR(raw []byte, order binary.ByteOrder) PCR {
	c := newCursor(raw, order)
	p := PCR{}
	p.HeadNum = c.u1()
	p.SiteNum = c.u1()
	p.PartCnt = c.u4()
	p.RtstCnt = c.u4()
	p.AbrtCnt = c.u4()
	p.GoodCnt = c.u4()
	p.FuncCnt = c.u4()
	return p
}
