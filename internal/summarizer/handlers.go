package summarizer

import (
	"fmt"

	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/stdfrec"
	"github.com/foundry/stdfingest/internal/summarizer/schema"
)

// dispatch decodes msg's payload per §4.3's record-type table and routes
// it to the matching handler. Every PTR/MPR/FTR handler shares a single
// "TR family" helper because all three contribute to the same
// seen-test-numbers cache and Test_Offsets row (§3.3).
func (s *Summarizer) dispatch(msg pipeline.Message) error {
	code := msg.RecordCode
	s.seen[code.String()]++

	switch code {
	case stdfrec.CodeMIR:
		return s.handleMIR(msg)
	case stdfrec.CodePMR:
		return s.handlePMR(msg)
	case stdfrec.CodePIR:
		return s.handlePIR(msg)
	case stdfrec.CodePRR:
		return s.handlePRR(msg)
	case stdfrec.CodePTR:
		return s.handlePTR(msg)
	case stdfrec.CodeMPR:
		return s.handleMPR(msg)
	case stdfrec.CodeFTR:
		return s.handleFTR(msg)
	case stdfrec.CodeHBR:
		return s.handleHBR(msg)
	case stdfrec.CodeSBR:
		return s.handleSBR(msg)
	case stdfrec.CodeWIR:
		return s.handleWIR(msg)
	case stdfrec.CodeWRR:
		return s.handleWRR(msg)
	case stdfrec.CodeWCR:
		return s.handleWCR(msg)
	case stdfrec.CodeTSR:
		return s.handleTSR(msg)
	case stdfrec.CodePCR:
		return s.handlePCR(msg)
	default:
		// Cannot happen: the reader only enqueues stdfrec.Enqueued codes.
		return nil
	}
}

// handleMIR writes one File_Info row per recognized MIR field (§4.3's
// "run-level metadata" table). There is exactly one MIR per file, but a
// malformed input that repeats it simply appends more rows — File_Info
// has no primary key to violate.
func (s *Summarizer) handleMIR(msg pipeline.Message) error {
	m := stdfrec.DecodeMIR(msg.Raw, s.order)

	fields := []struct {
		name  string
		value string
	}{
		{"SETUP_T", fmt.Sprintf("%d", m.SetupT)},
		{"START_T", fmt.Sprintf("%d", m.StartT)},
		{"STAT_NUM", fmt.Sprintf("%d", m.StatNum)},
		{"MODE_COD", string(m.ModeCod)},
		{"RTST_COD", string(m.RtstCod)},
		{"PROT_COD", string(m.ProtCod)},
		{"BURN_TIM", fmt.Sprintf("%d", m.BurnTim)},
		{"CMOD_COD", string(m.CmodCod)},
	}
	for _, f := range fields {
		if _, err := s.stmts.insertFileInfo.Exec(f.name, f.value); err != nil {
			return fmt.Errorf("summarizer: insert File_Info %s: %w", f.name, err)
		}
	}
	return nil
}

// handlePMR decodes the pin map record purely to keep the record count
// accurate; the fixed schema of §6.4 has no column for pin-level
// metadata, so nothing further is persisted (§4.3 notes PMR's view is
// "discarded without being persisted").
func (s *Summarizer) handlePMR(msg pipeline.Message) error {
	_ = stdfrec.DecodePMR(msg.Raw, s.order)
	return nil
}

// handlePIR opens a new DUT: it assigns the next DUTIndex, records the
// (head, site) -> DUTIndex correlation for the PRR that will close it and
// for every PTR/MPR/FTR in between, and inserts the Dut_Info row's key
// columns.
func (s *Summarizer) handlePIR(msg pipeline.Message) error {
	p := stdfrec.DecodePIR(msg.Raw, s.order)

	s.corr.dutIndex++
	dutIndex := s.corr.dutIndex
	s.corr.headSiteToDut[headSite(p.HeadNum, p.SiteNum)] = dutIndex

	if _, err := s.stmts.insertDutInfo.Exec(p.HeadNum, p.SiteNum, dutIndex); err != nil {
		return fmt.Errorf("summarizer: insert Dut_Info: %w", err)
	}
	return nil
}

// handlePRR closes the DUT opened by the matching PIR: it backfills
// Dut_Info's result columns, writes inferred Bin_Info rows for the
// part's hard/soft bin (possibly overwritten later by an authoritative
// HBR/SBR), and performs the COMMIT; BEGIN transaction-boundary dance of
// §3.4 so a crash between two PRRs never loses more than one part's
// worth of work.
func (s *Summarizer) handlePRR(msg pipeline.Message) error {
	p := stdfrec.DecodePRR(msg.Raw, s.order)

	key := headSite(p.HeadNum, p.SiteNum)
	dutIndex, ok := s.corr.headSiteToDut[key]
	if !ok {
		return fmt.Errorf("summarizer: PRR for head=%d site=%d: %w", p.HeadNum, p.SiteNum, ingesterr.ErrMapMissing)
	}

	waferIndex := s.corr.headToWafer[p.HeadNum] // 0 means "no open wafer"

	if _, err := s.stmts.updateDutInfo.Exec(
		p.NumTest, p.TestT, p.PartID, p.HardBin, p.SoftBin, p.PartFlg, waferIndex, p.XCoord, p.YCoord,
		dutIndex,
	); err != nil {
		return fmt.Errorf("summarizer: update Dut_Info: %w", err)
	}

	pf := "P"
	if p.PartFlg&0x08 != 0 {
		pf = "F"
	}
	if _, err := s.stmts.upsertBinInfo.Exec("H", p.HardBin, schema.MissingName, pf); err != nil {
		return fmt.Errorf("summarizer: upsert inferred hard Bin_Info: %w", err)
	}
	if _, err := s.stmts.upsertBinInfo.Exec("S", p.SoftBin, schema.MissingName, pf); err != nil {
		return fmt.Errorf("summarizer: upsert inferred soft Bin_Info: %w", err)
	}

	if _, err := s.db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("summarizer: commit at PRR: %w", err)
	}
	if _, err := s.db.Exec("BEGIN"); err != nil {
		return fmt.Errorf("summarizer: begin after PRR: %w", err)
	}
	return nil
}

// recordTestInfoOnce inserts a Test_Info row the first time testNum is
// seen (§3.3's seen_test_nums set), and always upserts the Test_Offsets
// row pointing back at this record's position in the source file so the
// parametric reader (component H) can retrieve it later.
func (s *Summarizer) recordTestInfoOnce(
	testNum uint32, recHeader stdfrec.Code, testTxt string,
	resScal int8, loLimit, hiLimit float32, units string, optFlag uint8,
	headNum, siteNum uint8, fileOffset uint64, rawLen uint16,
) error {
	if !s.corr.seenTestNums[testNum] {
		s.corr.seenTestNums[testNum] = true
		name := testTxt
		if name == "" {
			name = schema.MissingName
		}
		if _, err := s.stmts.insertTestInfo.Exec(
			testNum, uint16(recHeader), name, resScal, loLimit, hiLimit, units, optFlag,
		); err != nil {
			return fmt.Errorf("summarizer: insert Test_Info: %w", err)
		}
	}

	dutIndex, ok := s.corr.headSiteToDut[headSite(headNum, siteNum)]
	if !ok {
		return fmt.Errorf("summarizer: test record for head=%d site=%d: %w", headNum, siteNum, ingesterr.ErrMapMissing)
	}
	if _, err := s.stmts.upsertTestOffsets.Exec(dutIndex, testNum, fileOffset, rawLen); err != nil {
		return fmt.Errorf("summarizer: upsert Test_Offsets: %w", err)
	}
	return nil
}

func (s *Summarizer) handlePTR(msg pipeline.Message) error {
	p := stdfrec.DecodePTR(msg.Raw, s.order)

	var loLimit, hiLimit float32
	var units string
	var resScal int8
	if p.HasLims {
		loLimit, hiLimit, units, resScal = p.LoLimit, p.HiLimit, p.Units, p.ResScal
	}

	return s.recordTestInfoOnce(
		p.TestNum, stdfrec.CodePTR, p.TestTxt,
		resScal, loLimit, hiLimit, units, p.OptFlag,
		p.HeadNum, p.SiteNum, msg.FileOffset, msg.RawLen,
	)
}

func (s *Summarizer) handleMPR(msg pipeline.Message) error {
	m := stdfrec.DecodeMPR(msg.Raw, s.order)

	var loLimit, hiLimit float32
	var units string
	var resScal int8
	if m.HasLims {
		loLimit, hiLimit, units, resScal = m.LoLimit, m.HiLimit, m.Units, m.ResScal
	}

	return s.recordTestInfoOnce(
		m.TestNum, stdfrec.CodeMPR, m.TestTxt,
		resScal, loLimit, hiLimit, units, m.OptFlag,
		m.HeadNum, m.SiteNum, msg.FileOffset, msg.RawLen,
	)
}

func (s *Summarizer) handleFTR(msg pipeline.Message) error {
	f := stdfrec.DecodeFTR(msg.Raw, s.order)

	// FTR carries no scale/limits/units (§4.3); Test_Info still gets a
	// row so a functional-only file still resolves TEST_NUM -> name.
	return s.recordTestInfoOnce(
		f.TestNum, stdfrec.CodeFTR, f.TestTxt,
		0, 0, 0, "", 0,
		f.HeadNum, f.SiteNum, msg.FileOffset, msg.RawLen,
	)
}

// handleHBR writes the authoritative hard-bin name/pass-fail row,
// overriding whatever PRR-inferred row (§4.3) exists for the same bin
// number via INSERT OR REPLACE.
func (s *Summarizer) handleHBR(msg pipeline.Message) error {
	h := stdfrec.DecodeHBR(msg.Raw, s.order)
	name := h.HBinNam
	if name == "" {
		name = schema.MissingName
	}
	if _, err := s.stmts.upsertBinInfo.Exec("H", h.HBinNum, name, string(h.HBinPF)); err != nil {
		return fmt.Errorf("summarizer: upsert authoritative hard Bin_Info: %w", err)
	}
	return nil
}

func (s *Summarizer) handleSBR(msg pipeline.Message) error {
	sb := stdfrec.DecodeSBR(msg.Raw, s.order)
	name := sb.SBinNam
	if name == "" {
		name = schema.MissingName
	}
	if _, err := s.stmts.upsertBinInfo.Exec("S", sb.SBinNum, name, string(sb.SBinPF)); err != nil {
		return fmt.Errorf("summarizer: upsert authoritative soft Bin_Info: %w", err)
	}
	return nil
}

// handleWIR opens a new wafer: assigns the next WaferIndex, records the
// head -> WaferIndex correlation for the matching WRR and every PRR in
// between, and inserts the Wafer_Info row's key columns.
func (s *Summarizer) handleWIR(msg pipeline.Message) error {
	w := stdfrec.DecodeWIR(msg.Raw, s.order)

	s.corr.waferIndex++
	waferIndex := s.corr.waferIndex
	s.corr.headToWafer[w.HeadNum] = waferIndex

	if _, err := s.stmts.insertWaferInfo.Exec(w.HeadNum, waferIndex, w.WaferID); err != nil {
		return fmt.Errorf("summarizer: insert Wafer_Info: %w", err)
	}
	return nil
}

// handleWRR closes the wafer opened by the matching WIR, backfilling its
// result counts and identifying strings.
func (s *Summarizer) handleWRR(msg pipeline.Message) error {
	w := stdfrec.DecodeWRR(msg.Raw, s.order)

	waferIndex, ok := s.corr.headToWafer[w.HeadNum]
	if !ok {
		return fmt.Errorf("summarizer: WRR for head=%d: %w", w.HeadNum, ingesterr.ErrMapMissing)
	}

	if _, err := s.stmts.updateWaferInfo.Exec(
		w.PartCnt, w.RtstCnt, w.AbrtCnt, w.GoodCnt, w.FuncCnt,
		w.WaferID, w.FabwfID, w.FrameID, w.MaskID, w.UsrDesc, w.ExcDesc,
		waferIndex,
	); err != nil {
		return fmt.Errorf("summarizer: update Wafer_Info: %w", err)
	}
	return nil
}

// handleWCR records the wafer map geometry as File_Info rows; WCR is a
// per-lot record with no numeric key of its own in the schema of §6.4.
func (s *Summarizer) handleWCR(msg pipeline.Message) error {
	w := stdfrec.DecodeWCR(msg.Raw, s.order)

	fields := []struct {
		name  string
		value string
	}{
		{"WAFR_SIZ", fmt.Sprintf("%g", w.WaferSize)},
		{"DIE_HT", fmt.Sprintf("%g", w.DieHeight)},
		{"DIE_WID", fmt.Sprintf("%g", w.DieWidth)},
		{"WF_UNITS", fmt.Sprintf("%d", w.WfUnits)},
		{"WF_FLAT", string(w.WfFlat)},
		{"CENTER_X", fmt.Sprintf("%d", w.CenterX)},
		{"CENTER_Y", fmt.Sprintf("%d", w.CenterY)},
		{"POS_X", string(w.PosX)},
		{"POS_Y", string(w.PosY)},
	}
	for _, f := range fields {
		if _, err := s.stmts.insertFileInfo.Exec(f.name, f.value); err != nil {
			return fmt.Errorf("summarizer: insert File_Info %s: %w", f.name, err)
		}
	}
	return nil
}

// handleTSR accumulates FAIL_CNT into the in-memory fail-count map
// flushed to Test_Info at finish (§4.4). A test run across multiple
// sites/heads emits one TSR per site for the same TEST_NUM, so each
// TSR's count adds to the running total rather than replacing it; a map
// miss starts the sum at zero, the Go zero value for int64.
func (s *Summarizer) handleTSR(msg pipeline.Message) error {
	t := stdfrec.DecodeTSR(msg.Raw, s.order)
	if t.FailCnt != 0xFFFFFFFF {
		s.corr.testFailCount[t.TestNum] += int64(t.FailCnt)
	}
	return nil
}

// handlePCR writes one Dut_Counts row per (head, site) part-count
// summary; unlike Wafer_Info/Dut_Info, PCR carries no correlated open/
// close pair to resolve, so it is a plain insert.
func (s *Summarizer) handlePCR(msg pipeline.Message) error {
	p := stdfrec.DecodePCR(msg.Raw, s.order)
	if _, err := s.stmts.insertDutCounts.Exec(
		p.HeadNum, p.SiteNum, p.PartCnt, p.RtstCnt, p.AbrtCnt, p.GoodCnt, p.FuncCnt,
	); err != nil {
		return fmt.Errorf("summarizer: insert Dut_Counts: %w", err)
	}
	return nil
}
