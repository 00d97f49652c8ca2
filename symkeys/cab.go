package symkeys

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/flate"
)

// CabReader decompresses the body of a compressed-blob probe response into
// the original symbol file content. Real Microsoft Cabinet (.cab) streams
// require a dedicated decoder that is out of scope for this module (spec
// treats it as an external collaborator); KlauspostCabReader below is a
// placeholder built on a real general-purpose compression library so the
// compressed-blob code path is exercised end-to-end. Production use should
// supply a CabReader backed by an actual .cab decoder.
type CabReader interface {
	// Decompress wraps r, a reader of compressed bytes, with a reader of
	// the decompressed content. The returned ReadCloser's Close releases
	// any resources used by the decompressor; it does not close r.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// KlauspostCabReader decompresses a raw DEFLATE stream via
// github.com/klauspost/compress/flate. It is the default CabReader and is
// intentionally not a .cab decoder — see the CabReader doc comment.
type KlauspostCabReader struct{}

// Decompress implements CabReader.
func (KlauspostCabReader) Decompress(r io.Reader) (io.ReadCloser, error) {
	fr := flate.NewReader(bufio.NewReader(r))
	return fr, nil
}
