package cloud

import (
	"io"
	"time"

	"github.com/rescale/rescale-upload/internal/constants"
)

// ProgressReader wraps an io.Reader and reports cumulative bytes read.
// Reports are emitted every constants.ProgressReportInterval bytes, at least
// once per constants.ProgressReportPeriod while bytes are moving, and on EOF.
type ProgressReader struct {
	reader   io.Reader
	report   ProgressFunc
	total    int64
	read     int64
	lastEmit int64
	lastAt   time.Time
	now      func() time.Time
}

// NewProgressReader creates a new progress-reporting reader. A nil report
// returns r unchanged.
func NewProgressReader(r io.Reader, total int64, report ProgressFunc) io.Reader {
	if report == nil {
		return r
	}
	return &ProgressReader{reader: r, report: report, total: total, lastAt: time.Now(), now: time.Now}
}

// Read implements io.Reader with progress reporting.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		switch {
		case pr.read-pr.lastEmit >= constants.ProgressReportInterval,
			pr.total > 0 && pr.read >= pr.total,
			pr.now().Sub(pr.lastAt) >= constants.ProgressReportPeriod:
			pr.emit()
		}
	}
	if err == io.EOF && pr.lastEmit != pr.read {
		pr.emit()
	}
	return n, err
}

func (pr *ProgressReader) emit() {
	pr.lastEmit = pr.read
	pr.lastAt = pr.now()
	pr.report(pr.read)
}
