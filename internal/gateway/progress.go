package gateway

import (
	"errors"
	"io"
)

// progressReader wraps a source and reports every byte read.
// Seeking rewinds the count so replayed request bodies are not counted twice.
type progressReader struct {
	reader  io.Reader
	read    int64
	onBytes ProgressFunc
}

func newProgressReader(r io.Reader, onBytes ProgressFunc) io.Reader {
	pr := &progressReader{reader: r, onBytes: onBytes}
	if _, ok := r.(io.ReadSeeker); ok {
		return &progressReadSeeker{pr}
	}
	return pr
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.onBytes != nil {
			pr.onBytes(int64(n))
		}
	}
	return n, err
}

type progressReadSeeker struct {
	*progressReader
}

func (ps *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := ps.reader.(io.Seeker)
	if !ok {
		return 0, errors.New("gateway: source is not seekable")
	}
	pos, err := seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	if delta := pos - ps.read; delta != 0 {
		ps.read = pos
		if ps.onBytes != nil {
			ps.onBytes(delta)
		}
	}
	return pos, nil
}

// progressWriter wraps a sink and reports every byte written.
type progressWriter struct {
	writer  io.Writer
	onBytes ProgressFunc
}

func newProgressWriter(w io.Writer, onBytes ProgressFunc) io.Writer {
	return &progressWriter{writer: w, onBytes: onBytes}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	if n > 0 && pw.onBytes != nil {
		pw.onBytes(int64(n))
	}
	return n, err
}
