package voice

import (
	"bufio"
	"bytes"
	"io"
)

const oggReadBuffer = 64 * 1024

var (
	oggCapture = []byte("OggS")
	opusHead   = []byte("OpusHead")
	opusTags   = []byte("OpusTags")
)

// oggReader pulls Opus packets out of an Ogg stream, skipping the stream's
// header pages.
type oggReader struct {
	r       *bufio.Reader
	pending [][]byte
	partial []byte
}

func newOggReader(r io.Reader) *oggReader {
	return &oggReader{r: bufio.NewReaderSize(r, oggReadBuffer)}
}

// NextPacket returns the next audio packet, or io.EOF at the end of the
// stream.
func (o *oggReader) NextPacket() ([]byte, error) {
	for len(o.pending) == 0 {
		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
	packet := o.pending[0]
	o.pending = o.pending[1:]
	return packet, nil
}

func (o *oggReader) readPage() error {
	if err := o.sync(); err != nil {
		return err
	}

	// version, header type, granule, serial, sequence, crc, segment count
	header := make([]byte, 23)
	if _, err := io.ReadFull(o.r, header); err != nil {
		return unexpected(err)
	}
	headerType := header[1]

	segments := make([]byte, header[22])
	if _, err := io.ReadFull(o.r, segments); err != nil {
		return unexpected(err)
	}

	size := 0
	for _, seg := range segments {
		size += int(seg)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(o.r, data); err != nil {
		return unexpected(err)
	}

	if headerType&0x02 != 0 || bytes.HasPrefix(data, opusHead) || bytes.HasPrefix(data, opusTags) {
		o.partial = o.partial[:0]
		return nil
	}

	o.pending = append(o.pending, o.split(segments, data)...)
	return nil
}

// split cuts a page into packets. A packet whose last segment is 255 bytes
// long continues on the next page.
func (o *oggReader) split(segments, data []byte) [][]byte {
	var packets [][]byte
	offset := 0
	for _, seg := range segments {
		n := int(seg)
		o.partial = append(o.partial, data[offset:offset+n]...)
		offset += n

		if seg < 255 {
			if len(o.partial) > 0 {
				packets = append(packets, append([]byte(nil), o.partial...))
			}
			o.partial = o.partial[:0]
		}
	}
	return packets
}

func (o *oggReader) sync() error {
	for {
		b, err := o.r.ReadByte()
		if err != nil {
			return err
		}
		if b != oggCapture[0] {
			continue
		}

		peek, err := o.r.Peek(3)
		if err != nil {
			return unexpected(err)
		}
		if bytes.Equal(peek, oggCapture[1:]) {
			_, _ = o.r.Discard(3)
			return nil
		}
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
