package vm

import (
	"io"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Output streams
// ---------------------------------------------------------------------------

// MaxMemoryStreams bounds the nesting of output stream 3.
const MaxMemoryStreams = 16

type memoryStream struct {
	table uint32
	count uint32
}

type streams struct {
	screen     bool
	screenOut  io.Writer
	transcript io.Writer
	tables     []memoryStream
}

// printZSCII sends ZSCII codes to every active stream. While a memory
// stream is selected it receives the text exclusively.
func (m *Machine) printZSCII(codes []uint16) error {
	if n := len(m.out.tables); n > 0 {
		ms := &m.out.tables[n-1]
		for _, c := range codes {
			if c == zsciiNull {
				continue
			}
			if err := m.image.WriteByte(ms.table+2+ms.count, byte(c)); err != nil {
				return err
			}
			ms.count++
		}
		return nil
	}

	m.emit(m.codec.ToString(codes), true)
	return nil
}

// emit queues text for the screen and, when toTranscript is set and
// stream 2 is on, the transcript.
func (m *Machine) emit(text string, toTranscript bool) {
	if text == "" {
		return
	}
	if m.out.screen && m.out.screenOut != nil {
		m.screenQueue = append(m.screenQueue, text...)
	}
	if toTranscript && m.out.transcript != nil && m.image.byteAt(flags2Lo)&flags2Transcript != 0 {
		m.transcriptQueue = append(m.transcriptQueue, text...)
	}
}

// flushOutput delivers queued text to the writers.
func (m *Machine) flushOutput() error {
	if len(m.screenQueue) > 0 {
		_, err := m.out.screenOut.Write(m.screenQueue)
		m.screenQueue = m.screenQueue[:0]
		if err != nil {
			return errors.Wrap(err, "write output")
		}
	}
	if len(m.transcriptQueue) > 0 {
		_, err := m.out.transcript.Write(m.transcriptQueue)
		m.transcriptQueue = m.transcriptQueue[:0]
		if err != nil {
			return errors.Wrap(err, "write transcript")
		}
	}
	return nil
}

func (m *Machine) discardOutput() {
	m.screenQueue = m.screenQueue[:0]
	m.transcriptQueue = m.transcriptQueue[:0]
}

// print sends Unicode text through the streams.
func (m *Machine) print(s string) error {
	return m.printZSCII(m.codec.FromString(s))
}

// printString decodes and prints the string at addr.
func (m *Machine) printString(addr uint32) error {
	codes, _, err := m.codec.DecodeZSCIIAt(addr)
	if err != nil {
		return err
	}
	return m.printZSCII(codes)
}

// selectStream implements output_stream.
func (m *Machine) selectStream(n int16, table uint32) error {
	switch n {
	case 0:
		return nil
	case 1:
		m.out.screen = true
	case -1:
		m.out.screen = false
	case 2, -2:
		flags := m.image.byteAt(flags2Lo)
		if n > 0 {
			flags |= flags2Transcript
		} else {
			flags &^= flags2Transcript
		}
		m.image.poke(flags2Lo, flags)
	case 3:
		if len(m.out.tables) >= MaxMemoryStreams {
			return malformed("output stream 3 nested more than %d deep", MaxMemoryStreams)
		}
		if m.image.RegionOf(table) != RegionDynamic {
			return memoryError(table, "output stream 3 table outside dynamic memory")
		}
		m.out.tables = append(m.out.tables, memoryStream{table: table})
	case -3:
		n := len(m.out.tables)
		if n == 0 {
			return nil
		}
		ms := m.out.tables[n-1]
		m.out.tables = m.out.tables[:n-1]
		return m.image.WriteWord(ms.table, uint16(ms.count))
	case 4, -4:
		// command recording is not kept
	default:
		return unsupported("output_stream", "unknown stream %d", n)
	}
	return nil
}

// saveStreams and restoreStreams bracket a step so a failed instruction
// does not leave memory-stream counters advanced.
func (m *Machine) saveStreams() streams {
	s := m.out
	s.tables = append([]memoryStream(nil), m.out.tables...)
	return s
}

func (m *Machine) restoreStreams(s streams) {
	m.out = s
}
