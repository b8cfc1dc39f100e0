package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeErrorLog struct{ cleared int }

func (f *fakeErrorLog) Clear() error {
	f.cleared++
	return nil
}

// --- Ledger ---

func TestLedger_RecordAndProgress(t *testing.T) {
	l := NewLedger()
	l.Record(FileRecord{Path: "a.png", Status: StatusSuccess, Attempts: 1})
	l.Record(FileRecord{Path: "b.png", Status: StatusSkipped, Attempts: 1, SkipReason: "up-to-date"})
	l.Record(FileRecord{Path: "c.png", Status: StatusFailed, Attempts: 3, Error: &FileError{Message: "x", Code: "EBUSY"}})

	p := l.Progress(2)
	assert.Equal(t, Progress{Total: 5, Processed: 3, Succeeded: 2, Failed: 1, Skipped: 1, Remaining: 2}, p)
	assert.Equal(t, p.Processed, p.Succeeded+p.Failed)
	assert.Equal(t, p.Total, p.Processed+p.Remaining)
}

func TestLedger_IsProcessed(t *testing.T) {
	l := NewLedger()
	l.Record(FileRecord{Path: "ok.png", Status: StatusSuccess, Attempts: 1})
	l.Record(FileRecord{Path: "skip.png", Status: StatusSkipped, Attempts: 1})
	l.Record(FileRecord{Path: "bad.png", Status: StatusFailed, Attempts: 1})

	assert.True(t, l.IsProcessed("ok.png"))
	assert.True(t, l.IsProcessed("skip.png"))
	assert.False(t, l.IsProcessed("bad.png"), "failed files are retried on resume")
	assert.False(t, l.IsProcessed("new.png"))
}

func TestLedger_ReRecordKeepsPosition(t *testing.T) {
	l := NewLedger()
	l.Record(FileRecord{Path: "a.png", Status: StatusFailed, Attempts: 1})
	l.Record(FileRecord{Path: "b.png", Status: StatusSuccess, Attempts: 1})
	l.Record(FileRecord{Path: "a.png", Status: StatusSuccess, Attempts: 2})

	recs := l.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "a.png", recs[0].Path)
	assert.Equal(t, StatusSuccess, recs[0].Status)
	assert.Empty(t, l.Failed())
}

// --- Store (file backend) ---

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	store := NewStore(NewFileBackend(path), nil, map[string]any{"input": "in"})

	l := NewLedger()
	l.Record(FileRecord{Path: "a.png", Status: StatusSuccess, Attempts: 1, Outputs: []string{"out/a.webp"}})
	require.NoError(t, store.Save(l, []string{"b.png", "c.png"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, Version, loaded.Version)
	assert.Equal(t, store.RunID(), loaded.RunID)
	assert.Equal(t, 1, loaded.Progress.Processed)
	assert.Equal(t, 2, loaded.Progress.Remaining)
	assert.Equal(t, 3, loaded.Progress.Total)
	assert.Equal(t, []string{"b.png", "c.png"}, loaded.Files.Pending)
	assert.Equal(t, "in", loaded.Configuration["input"])
	assert.Equal(t, 1, loaded.StartIndex())

	rebuilt := LedgerFromState(loaded)
	assert.True(t, rebuilt.IsProcessed("a.png"))
}

func TestStore_SaveRecomputesEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewStore(NewFileBackend(path), nil, nil)

	l := NewLedger()
	require.NoError(t, store.Save(l, []string{"a", "b"}))
	l.Record(FileRecord{Path: "a", Status: StatusSuccess, Attempts: 1})
	require.NoError(t, store.Save(l, []string{"b"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 2, Processed: 1, Succeeded: 1, Remaining: 1}, loaded.Progress)
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(NewFileBackend(filepath.Join(t.TempDir(), "none.json")), nil, nil)
	st, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestStore_LoadVersionMismatchIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "progress": {"processed": 5}}`), 0o644))

	st, err := NewStore(NewFileBackend(path), nil, nil).Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1,`), 0o644))

	_, err := NewStore(NewFileBackend(path), nil, nil).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_AdoptKeepsRunIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	first := NewStore(NewFileBackend(path), nil, nil)
	require.NoError(t, first.Save(NewLedger(), nil))

	second := NewStore(NewFileBackend(path), nil, nil)
	st, err := second.Load()
	require.NoError(t, err)
	second.Adopt(st)

	assert.Equal(t, first.RunID(), second.RunID())
	assert.True(t, first.StartedAt().Equal(second.StartedAt()))
}

func TestStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	errLog := &fakeErrorLog{}
	store := NewStore(NewFileBackend(path), errLog, nil)

	l := NewLedger()
	l.Record(FileRecord{Path: "a", Status: StatusSuccess, Attempts: 1})
	require.NoError(t, store.Save(l, nil))
	require.FileExists(t, path)

	require.NoError(t, store.Clear(l))
	assert.NoFileExists(t, path)
	assert.Equal(t, 1, errLog.cleared)
	assert.Zero(t, l.Len())
}

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "checkpoint.json"))
	require.NoError(t, b.Write([]byte("one")))
	require.NoError(t, b.Write([]byte("two")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.json", entries[0].Name())

	data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

// --- Backends (shared contract) ---

func backendContract(t *testing.T, name string, factory func(t *testing.T) (Backend, string)) {
	t.Run(name+"/Read_NotFound", func(t *testing.T) {
		b, _ := factory(t)
		defer b.Close()
		_, err := b.Read()
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run(name+"/Write_Overwrite", func(t *testing.T) {
		b, _ := factory(t)
		defer b.Close()
		require.NoError(t, b.Write([]byte("first")))
		require.NoError(t, b.Write([]byte("second")))
		data, err := b.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run(name+"/Remove", func(t *testing.T) {
		b, path := factory(t)
		defer b.Close()
		require.NoError(t, b.Write([]byte("x")))
		require.NoError(t, b.Remove())
		assert.NoFileExists(t, path)
		_, err := b.Read()
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, b.Remove(), "removing twice is fine")
	})

	t.Run(name+"/WriteAfterRemove", func(t *testing.T) {
		b, _ := factory(t)
		defer b.Close()
		require.NoError(t, b.Remove())
		require.NoError(t, b.Write([]byte("again")))
		data, err := b.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte("again"), data)
	})
}

func TestBackends(t *testing.T) {
	backendContract(t, "File", func(t *testing.T) (Backend, string) {
		p := filepath.Join(t.TempDir(), "cp.json")
		return NewFileBackend(p), p
	})
	backendContract(t, "SQLite", func(t *testing.T) (Backend, string) {
		p := filepath.Join(t.TempDir(), "cp.db")
		return NewSQLiteBackend(p), p
	})
}

func TestOpenBackend_ByExtension(t *testing.T) {
	b, err := OpenBackend("state.sqlite")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)

	b, err = OpenBackend("state.json")
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)
}

func TestStore_SQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := NewStore(NewSQLiteBackend(path), nil, nil)
	defer store.Close()

	l := NewLedger()
	l.Record(FileRecord{Path: "x.png", Status: StatusFailed, Attempts: 2, Error: &FileError{Message: "busy", Code: "EBUSY"}})
	require.NoError(t, store.Save(l, []string{"y.png"}))

	st, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Len(t, st.Files.Processed, 1)
	assert.Equal(t, "EBUSY", st.Files.Processed[0].Error.Code)
	assert.Equal(t, 1, st.Progress.Failed)
}
