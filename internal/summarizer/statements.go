package summarizer

import "database/sql"

// statements holds every prepared statement the handlers in handlers.go
// bind against. Preparing once up front and reusing across the whole
// ingestion run avoids re-parsing SQL per record, the same tradeoff the
// teacher's internal/queue.SQLiteQueue makes for its enqueue/dequeue
// statements.
type statements struct {
	insertFileInfo      *sql.Stmt
	insertWaferInfo     *sql.Stmt
	updateWaferInfo     *sql.Stmt
	insertDutInfo       *sql.Stmt
	updateDutInfo       *sql.Stmt
	insertDutCounts     *sql.Stmt
	insertTestInfo      *sql.Stmt
	updateTestFailCount *sql.Stmt
	upsertTestOffsets   *sql.Stmt
	upsertBinInfo       *sql.Stmt
}

func prepareStatements(db *sql.DB) (*statements, error) {
	s := &statements{}
	var err error

	prepare := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*dst, err = db.Prepare(query)
	}

	prepare(&s.insertFileInfo, `INSERT INTO File_Info (Field, Value) VALUES (?, ?)`)

	prepare(&s.insertWaferInfo, `INSERT INTO Wafer_Info (HEAD_NUM, WaferIndex, WAFER_ID) VALUES (?, ?, ?)`)

	prepare(&s.updateWaferInfo, `UPDATE Wafer_Info SET
		PART_CNT = ?, RTST_CNT = ?, ABRT_CNT = ?, GOOD_CNT = ?, FUNC_CNT = ?,
		WAFER_ID = ?, FABWF_ID = ?, FRAME_ID = ?, MASK_ID = ?, USR_DESC = ?, EXC_DESC = ?
		WHERE WaferIndex = ?`)

	prepare(&s.insertDutInfo, `INSERT INTO Dut_Info (HEAD_NUM, SITE_NUM, DUTIndex) VALUES (?, ?, ?)`)

	prepare(&s.updateDutInfo, `UPDATE Dut_Info SET
		TestCount = ?, TestTime = ?, PartID = ?, HBIN = ?, SBIN = ?, Flag = ?, WaferIndex = ?, XCOORD = ?, YCOORD = ?
		WHERE DUTIndex = ?`)

	prepare(&s.insertDutCounts, `INSERT INTO Dut_Counts
		(HEAD_NUM, SITE_NUM, PART_CNT, RTST_CNT, ABRT_CNT, GOOD_CNT, FUNC_CNT)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepare(&s.insertTestInfo, `INSERT INTO Test_Info
		(TEST_NUM, recHeader, TEST_NAME, RES_SCAL, LLimit, HLimit, Unit, OPT_FLAG, FailCount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, -1)`)

	prepare(&s.updateTestFailCount, `UPDATE Test_Info SET FailCount = ? WHERE TEST_NUM = ?`)

	prepare(&s.upsertTestOffsets, `INSERT OR REPLACE INTO Test_Offsets
		(DUTIndex, TEST_NUM, Offset, BinaryLen) VALUES (?, ?, ?, ?)`)

	prepare(&s.upsertBinInfo, `INSERT OR REPLACE INTO Bin_Info
		(BIN_TYPE, BIN_NUM, BIN_NAME, BIN_PF) VALUES (?, ?, ?, ?)`)

	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// close finalizes every non-nil prepared statement. Errors are ignored:
// the database handle is closed immediately afterward regardless.
func (s *statements) close() {
	for _, stmt := range []*sql.Stmt{
		s.insertFileInfo, s.insertWaferInfo, s.updateWaferInfo,
		s.insertDutInfo, s.updateDutInfo, s.insertDutCounts,
		s.insertTestInfo, s.updateTestFailCount, s.upsertTestOffsets, s.upsertBinInfo,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}
