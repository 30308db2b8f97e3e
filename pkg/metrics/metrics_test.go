package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.FileFinished(ResultConverted, time.Second)
	r.FileFinished(ResultConverted, 2*time.Second)
	r.FileFinished(ResultInvalid, time.Second)
	r.RowsWritten(10)
	r.RowsWritten(5)
	r.ChunkValidated()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.filesTotal.WithLabelValues(ResultConverted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.filesTotal.WithLabelValues(ResultInvalid)))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.rowsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.chunksValidated))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.FileFinished(ResultError, time.Second)
		r.RowsWritten(3)
		r.ChunkValidated()
	})
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "unused.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.FileFinished(ResultConverted, time.Second)
	r.RowsWritten(7)

	path := filepath.Join(t.TempDir(), "zolltools.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `zolltools_files_total{result="converted"} 1`), text)
	assert.True(t, strings.Contains(text, "zolltools_rows_written_total 7"), text)
}
