package summarizer_test

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/stdfrec"
	"github.com/foundry/stdfingest/internal/stdftest"
	"github.com/foundry/stdfingest/internal/summarizer"
)

// feed drives msgs through s.Run on a background goroutine, the same
// hand-off the reader thread performs in production.
func feed(t *testing.T, q *pipeline.Queue, order binary.ByteOrder, msgs []pipeline.Message, finishErr error) {
	t.Helper()
	go func() {
		q.Enqueue(pipeline.Message{Op: pipeline.OpSetEndian, Order: order})
		for _, m := range msgs {
			q.Enqueue(m)
		}
		q.Enqueue(pipeline.Message{Op: pipeline.OpFinish, Err: finishErr})
		q.Close()
	}()
}

func ptrMessage(testNum uint32, head, site uint8, flg uint8, result float32, name string) pipeline.Message {
	raw := stdftest.NewPayload(binary.NativeEndian).
		U4(testNum).U1(head).U1(site).U1(flg).U1(0).R4(result).Cn(name).Cn("").
		U1(0x02).I1(0).I1(0).I1(0).R4(0).R4(10).Cn("V").Bytes()
	return pipeline.Message{Op: pipeline.OpParse, RecordCode: stdfrec.CodePTR, Raw: raw, RawLen: uint16(len(raw))}
}

func pirMessage(head, site uint8) pipeline.Message {
	raw := stdftest.NewPayload(binary.NativeEndian).U1(head).U1(site).Bytes()
	return pipeline.Message{Op: pipeline.OpParse, RecordCode: stdfrec.CodePIR, Raw: raw, RawLen: uint16(len(raw))}
}

func prrMessage(head, site uint8, hbin, sbin uint16, partFlg uint8, partID string) pipeline.Message {
	raw := stdftest.NewPayload(binary.NativeEndian).
		U1(head).U1(site).U1(partFlg).U2(1).U2(hbin).U2(sbin).I2(0).I2(0).U4(100).Cn(partID).Bytes()
	return pipeline.Message{Op: pipeline.OpParse, RecordCode: stdfrec.CodePRR, Raw: raw, RawLen: uint16(len(raw))}
}

func TestSummarizerSingleDutRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "summary.db")
	s, err := summarizer.New(dbPath, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	q := pipeline.NewQueue(16)
	msgs := []pipeline.Message{
		pirMessage(1, 1),
		ptrMessage(10, 1, 1, 0x40, 1.5, "vddq"), // failing test
		prrMessage(1, 1, 1, 1, 0x08, "DIE0001"), // PartFlg 0x08 -> fail
	}
	feed(t, q, binary.NativeEndian, msgs, ingesterr.ErrEOF)

	summary, err := s.Run(q)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DutCount != 1 {
		t.Fatalf("DutCount = %d, want 1", summary.DutCount)
	}
	if summary.RecordsSeen["PIR"] != 1 || summary.RecordsSeen["PTR"] != 1 || summary.RecordsSeen["PRR"] != 1 {
		t.Fatalf("RecordsSeen = %+v", summary.RecordsSeen)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open for assertions: %v", err)
	}
	defer db.Close()

	var partID string
	var hbin, sbin int
	if err := db.QueryRow("SELECT PartID, HBIN, SBIN FROM Dut_Info WHERE DUTIndex = 1").Scan(&partID, &hbin, &sbin); err != nil {
		t.Fatalf("query Dut_Info: %v", err)
	}
	if partID != "DIE0001" || hbin != 1 || sbin != 1 {
		t.Fatalf("Dut_Info row = (%q, %d, %d)", partID, hbin, sbin)
	}

	var failCount int64
	if err := db.QueryRow("SELECT FailCount FROM Test_Info WHERE TEST_NUM = 10").Scan(&failCount); err != nil {
		t.Fatalf("query Test_Info: %v", err)
	}
	if failCount != -1 {
		t.Fatalf("FailCount = %d, want -1 (no TSR seen, so the seeded default must survive)", failCount)
	}

	var binPF string
	if err := db.QueryRow("SELECT BIN_PF FROM Bin_Info WHERE BIN_TYPE = 'H' AND BIN_NUM = 1").Scan(&binPF); err != nil {
		t.Fatalf("query Bin_Info: %v", err)
	}
	if binPF != "F" {
		t.Fatalf("BIN_PF = %q, want F", binPF)
	}
}

func TestSummarizerHBRSBRAuthoritativeOverride(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "summary.db")
	s, err := summarizer.New(dbPath, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	hbrRaw := stdftest.NewPayload(binary.NativeEndian).U1(1).U1(1).U2(1).U4(5).C1('P').Cn("GoodBin").Bytes()

	q := pipeline.NewQueue(16)
	msgs := []pipeline.Message{
		pirMessage(1, 1),
		prrMessage(1, 1, 1, 1, 0x00, "DIE0002"),
		{Op: pipeline.OpParse, RecordCode: stdfrec.CodeHBR, Raw: hbrRaw, RawLen: uint16(len(hbrRaw))},
	}
	feed(t, q, binary.NativeEndian, msgs, ingesterr.ErrEOF)

	if _, err := s.Run(q); err != nil {
		t.Fatalf("Run: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open for assertions: %v", err)
	}
	defer db.Close()

	var name, pf string
	if err := db.QueryRow("SELECT BIN_NAME, BIN_PF FROM Bin_Info WHERE BIN_TYPE = 'H' AND BIN_NUM = 1").Scan(&name, &pf); err != nil {
		t.Fatalf("query Bin_Info: %v", err)
	}
	if name != "GoodBin" || pf != "P" {
		t.Fatalf("Bin_Info = (%q, %q), want (GoodBin, P) - HBR should override PRR-inferred row", name, pf)
	}
}

func TestSummarizerErrMapMissingOnOrphanPRR(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "summary.db")
	s, err := summarizer.New(dbPath, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	q := pipeline.NewQueue(16)
	// No PIR precedes this PRR, so the head/site -> DUTIndex lookup fails.
	msgs := []pipeline.Message{prrMessage(9, 9, 1, 1, 0, "ORPHAN")}
	feed(t, q, binary.NativeEndian, msgs, ingesterr.ErrEOF)

	_, err = s.Run(q)
	if !errors.Is(err, ingesterr.ErrMapMissing) {
		t.Fatalf("Run err = %v, want ErrMapMissing", err)
	}
}

func TestSummarizerWaferLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "summary.db")
	s, err := summarizer.New(dbPath, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	wirRaw := stdftest.NewPayload(binary.NativeEndian).U1(1).U1(0).U4(0).Cn("WAFER01").Bytes()
	wrrRaw := stdftest.NewPayload(binary.NativeEndian).
		U1(1).U1(0).U4(0).U4(10).U4(0).U4(0).U4(9).U4(10).
		Cn("WAFER01").Cn("").Cn("").Cn("").Cn("").Cn("").Bytes()

	q := pipeline.NewQueue(16)
	msgs := []pipeline.Message{
		{Op: pipeline.OpParse, RecordCode: stdfrec.CodeWIR, Raw: wirRaw, RawLen: uint16(len(wirRaw))},
		pirMessage(1, 1),
		prrMessage(1, 1, 1, 1, 0, "DIE0003"),
		{Op: pipeline.OpParse, RecordCode: stdfrec.CodeWRR, Raw: wrrRaw, RawLen: uint16(len(wrrRaw))},
	}
	feed(t, q, binary.NativeEndian, msgs, ingesterr.ErrEOF)

	summary, err := s.Run(q)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.WaferCount != 1 {
		t.Fatalf("WaferCount = %d, want 1", summary.WaferCount)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open for assertions: %v", err)
	}
	defer db.Close()

	var waferIndex int64
	if err := db.QueryRow("SELECT WaferIndex FROM Dut_Info WHERE DUTIndex = 1").Scan(&waferIndex); err != nil {
		t.Fatalf("query Dut_Info.WaferIndex: %v", err)
	}
	if waferIndex != 1 {
		t.Fatalf("Dut_Info.WaferIndex = %d, want 1 (PRR between WIR/WRR should correlate to the open wafer)", waferIndex)
	}

	var partCnt int64
	if err := db.QueryRow("SELECT PART_CNT FROM Wafer_Info WHERE WaferIndex = 1").Scan(&partCnt); err != nil {
		t.Fatalf("query Wafer_Info: %v", err)
	}
	if partCnt != 10 {
		t.Fatalf("Wafer_Info.PART_CNT = %d, want 10", partCnt)
	}
}

func TestSummarizerTSRAccumulatesAcrossSites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "summary.db")
	s, err := summarizer.New(dbPath, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// A multi-site run emits one TSR per site for the same TEST_NUM; the
	// final FailCount is the sum across all of them, not the last one seen.
	tsrSite1 := stdftest.NewPayload(binary.NativeEndian).
		U1(1).U1(1).C1('P').U4(10).U4(100).U4(7).Bytes()
	tsrSite2 := stdftest.NewPayload(binary.NativeEndian).
		U1(1).U1(2).C1('P').U4(10).U4(100).U4(3).Bytes()

	q := pipeline.NewQueue(16)
	msgs := []pipeline.Message{
		pirMessage(1, 1),
		ptrMessage(10, 1, 1, 0x40, 1.5, "vddq"),
		prrMessage(1, 1, 1, 1, 0, "DIE0004"),
		{Op: pipeline.OpParse, RecordCode: stdfrec.CodeTSR, Raw: tsrSite1, RawLen: uint16(len(tsrSite1))},
		{Op: pipeline.OpParse, RecordCode: stdfrec.CodeTSR, Raw: tsrSite2, RawLen: uint16(len(tsrSite2))},
	}
	feed(t, q, binary.NativeEndian, msgs, ingesterr.ErrEOF)

	if _, err := s.Run(q); err != nil {
		t.Fatalf("Run: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open for assertions: %v", err)
	}
	defer db.Close()

	var failCount int64
	if err := db.QueryRow("SELECT FailCount FROM Test_Info WHERE TEST_NUM = 10").Scan(&failCount); err != nil {
		t.Fatalf("query Test_Info: %v", err)
	}
	if failCount != 10 {
		t.Fatalf("FailCount = %d, want 10 (sum of both sites' TSR.FAIL_CNT)", failCount)
	}
}
