package searchpdf

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// writer emits a classic cross-reference PDF. Object numbers are handed out
// by reserve so bodies can reference objects written later.
type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
	next    int
}

func newWriter() *writer {
	w := &writer{offsets: make(map[int]int), next: 1}
	// Binary comment marks the file as 8-bit for transfer tools.
	w.buf.WriteString("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")
	return w
}

func (w *writer) reserve() int {
	n := w.next
	w.next++
	return n
}

func (w *writer) object(num int, body string) {
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

// stream writes a stream object. dict holds the entries without Length.
func (w *writer) stream(num int, dict string, data []byte) {
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

// flateStream compresses data with zlib and writes it as a FlateDecode stream.
func (w *writer) flateStream(num int, dict string, data []byte) error {
	var z bytes.Buffer
	zw, err := zlib.NewWriterLevel(&z, zlib.BestCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if dict != "" {
		dict += " "
	}
	w.stream(num, dict+"/Filter /FlateDecode", z.Bytes())
	return nil
}

// finish writes the xref table and trailer and returns the document bytes.
func (w *writer) finish(root, info int, id []byte) ([]byte, error) {
	size := w.next
	for n := 1; n < size; n++ {
		if _, ok := w.offsets[n]; !ok {
			return nil, fmt.Errorf("object %d reserved but never written", n)
		}
	}

	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for n := 1; n < size; n++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[n])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R /ID [<%X> <%X>] >>\n", size, root, info, id, id)
	fmt.Fprintf(&w.buf, "startxref\n%d\n%%%%EOF\n", xref)
	return w.buf.Bytes(), nil
}
