// Package schema holds the persistent relational schema (§3.4/§6.4) that
// the summarizer writes into the embedded SQLite database, bit-stable
// across runs the way the teacher's internal/queue.ddl constant is kept
// alongside its owning package rather than split into a migrations
// directory (this engine has no migration Non-goal to honor).
package schema

// DDL creates every table named in §6.4, in the column order the
// contract specifies. CREATE TABLE IF NOT EXISTS makes re-applying it
// against a freshly truncated database idempotent (R2).
const DDL = `
CREATE TABLE IF NOT EXISTS File_Info (
    Field TEXT,
    Value TEXT
);

CREATE TABLE IF NOT EXISTS Wafer_Info (
    HEAD_NUM   INTEGER,
    WaferIndex INTEGER PRIMARY KEY,
    PART_CNT   INTEGER,
    RTST_CNT   INTEGER,
    ABRT_CNT   INTEGER,
    GOOD_CNT   INTEGER,
    FUNC_CNT   INTEGER,
    WAFER_ID   TEXT,
    FABWF_ID   TEXT,
    FRAME_ID   TEXT,
    MASK_ID    TEXT,
    USR_DESC   TEXT,
    EXC_DESC   TEXT
);

CREATE TABLE IF NOT EXISTS Dut_Info (
    HEAD_NUM   INTEGER,
    SITE_NUM   INTEGER,
    DUTIndex   INTEGER PRIMARY KEY,
    TestCount  INTEGER,
    TestTime   INTEGER,
    PartID     TEXT,
    HBIN       INTEGER,
    SBIN       INTEGER,
    Flag       INTEGER,
    WaferIndex INTEGER,
    XCOORD     INTEGER,
    YCOORD     INTEGER
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS Dut_Counts (
    HEAD_NUM INTEGER,
    SITE_NUM INTEGER,
    PART_CNT INTEGER,
    RTST_CNT INTEGER,
    ABRT_CNT INTEGER,
    GOOD_CNT INTEGER,
    FUNC_CNT INTEGER
);

CREATE TABLE IF NOT EXISTS Test_Info (
    TEST_NUM  INTEGER PRIMARY KEY,
    recHeader INTEGER,
    TEST_NAME TEXT,
    RES_SCAL  INTEGER,
    LLimit    REAL,
    HLimit    REAL,
    Unit      TEXT,
    OPT_FLAG  INTEGER,
    FailCount INTEGER
);

CREATE TABLE IF NOT EXISTS Test_Offsets (
    DUTIndex  INTEGER,
    TEST_NUM  INTEGER,
    Offset    INTEGER,
    BinaryLen INTEGER,
    PRIMARY KEY (DUTIndex, TEST_NUM)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS Bin_Info (
    BIN_TYPE TEXT,
    BIN_NUM  INTEGER,
    BIN_NAME TEXT,
    BIN_PF   TEXT,
    PRIMARY KEY (BIN_TYPE, BIN_NUM)
) WITHOUT ROWID;
`

// PragmaStatements returns the PRAGMAs §6.4 requires to be applied before
// the first insert. Unlike internal/queue's WAL-mode alert queue (which
// needs crash durability because it is the only copy of an in-flight
// alert), the ingestion engine treats the source STDF file as the
// durable record: synchronous=OFF trades crash-durability for write
// throughput because a crash mid-ingest is recovered by truncating and
// re-running (R2), not by WAL replay.
var PragmaStatements = []string{
	"PRAGMA synchronous = OFF",
	"PRAGMA journal_mode = WAL",
}

// MissingName is substituted for an empty BIN_NAME (§4.3 HBR/SBR/PRR
// handlers).
const MissingName = "MissingName"
