package serialbt

// The bridge multiplexes two streams over one UART: ASCII event lines
// terminated by LF, and binary notification frames introduced by STX with a
// 16-bit big-endian length. The parser splits them byte by byte so partial
// reads never lose framing.

const (
	stx          = 0x02
	maxFrameLen  = 512
	maxLineLen   = 256
	frameHdrSize = 3
)

type parserState uint8

const (
	stateLine parserState = iota
	stateLenHi
	stateLenLo
	statePayload
)

type parser struct {
	onLine  func(string)
	onFrame func([]byte)

	state   parserState
	line    []byte
	need    int
	payload []byte
}

func newParser(onLine func(string), onFrame func([]byte)) *parser {
	return &parser{onLine: onLine, onFrame: onFrame}
}

func (p *parser) feed(data []byte) {
	for _, b := range data {
		p.feedByte(b)
	}
}

func (p *parser) feedByte(b byte) {
	switch p.state {
	case stateLine:
		if b == stx && len(p.line) == 0 {
			p.state = stateLenHi
			return
		}
		if b == '\n' {
			p.emitLine()
			return
		}
		if len(p.line) >= maxLineLen {
			p.line = p.line[:0]
			return
		}
		p.line = append(p.line, b)
	case stateLenHi:
		p.need = int(b) << 8
		p.state = stateLenLo
	case stateLenLo:
		p.need |= int(b)
		if p.need == 0 || p.need > maxFrameLen {
			p.reset()
			return
		}
		p.payload = p.payload[:0]
		p.state = statePayload
	case statePayload:
		p.payload = append(p.payload, b)
		if len(p.payload) == p.need {
			frame := make([]byte, p.need)
			copy(frame, p.payload)
			p.reset()
			p.onFrame(frame)
		}
	}
}

func (p *parser) emitLine() {
	line := p.line
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	s := string(line)
	p.line = p.line[:0]
	if s != "" {
		p.onLine(s)
	}
}

func (p *parser) reset() {
	p.state = stateLine
	p.need = 0
	p.payload = p.payload[:0]
}

// encodeFrame wraps one outbound payload in STX length framing.
func encodeFrame(data []byte) []byte {
	out := make([]byte, 0, frameHdrSize+len(data))
	out = append(out, stx, byte(len(data)>>8), byte(len(data)))
	return append(out, data...)
}
