package upload

import "io"

// progressReader reports bytes read from the multipart body as a
// monotonically non-decreasing percentage. The transport may re-read or
// buffer oddly; the monotonic guard means the operator never watches the
// bar move backwards.
type progressReader struct {
	r       io.Reader
	total   int64
	sent    int64
	highest float64
	emit    func(percent float64)
}

func newProgressReader(r io.Reader, total int64, emit func(float64)) *progressReader {
	return &progressReader{r: r, total: total, emit: emit}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		pct := 100.0
		if p.total > 0 {
			pct = float64(p.sent) / float64(p.total) * 100
		}
		if pct > 100 {
			pct = 100
		}
		if pct > p.highest {
			p.highest = pct
			if p.emit != nil {
				p.emit(pct)
			}
		}
	}
	return n, err
}
