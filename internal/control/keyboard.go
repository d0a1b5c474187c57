package control

import (
	"bufio"
	"errors"
	"io"
	"os"
	"runtime"
	"sync"

	"webfitts/internal/protocol"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// ErrInterrupted is returned by Listen when Ctrl+C is read from a raw
// terminal, where it no longer raises SIGINT.
var ErrInterrupted = errors.New("keyboard listener interrupted")

const (
	keyEsc   = 0x1b
	keyCtrlC = 0x03
)

// KeyboardListener maps single key presses to study commands. Every
// mapped key produces its own broadcast; nothing is coalesced.
type KeyboardListener struct {
	session *Session
	out     Broadcaster
	log     *zap.Logger
}

func NewKeyboardListener(session *Session, out Broadcaster, logger *zap.Logger) *KeyboardListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyboardListener{
		session: session,
		out:     out,
		log:     logger.With(zap.String("component", "keyboard")),
	}
}

// HandleKey processes one key press. It returns false once the listener
// should stop reading.
func (l *KeyboardListener) HandleKey(key byte) bool {
	switch key {
	case 'w':
		l.move(0, -l.session.Speed())
	case 's':
		l.move(0, l.session.Speed())
	case 'a':
		l.move(-l.session.Speed(), 0)
	case 'd':
		l.move(l.session.Speed(), 0)
	case 'g':
		l.send(protocol.CommandTriggerClick, nil)
	case 'e':
		l.send(protocol.CommandEnableControl, nil)
	case 'q':
		l.send(protocol.CommandDisableControl, nil)
	case '+', '=':
		l.log.Info("Speed changed", zap.Float64("speed", l.session.AdjustSpeed(SpeedStep)))
	case '-':
		l.log.Info("Speed changed", zap.Float64("speed", l.session.AdjustSpeed(-SpeedStep)))
	case keyEsc, keyCtrlC:
		l.session.Stop()
		l.log.Info("Keyboard control stopped")
		return false
	}
	return true
}

func (l *KeyboardListener) move(dx, dy float64) {
	l.send(protocol.CommandSetCursorRelative, protocol.RelativeMove{DX: dx, DY: dy})
}

func (l *KeyboardListener) send(name protocol.CommandName, data any) {
	if err := l.out.BroadcastCommand(name, data); err != nil {
		l.log.Warn("Failed to broadcast command", zap.String("command", string(name)), zap.Error(err))
		return
	}
	l.log.Debug("Command broadcast", zap.String("command", string(name)))
}

// Listen reads key presses from r until esc, Ctrl+C or end of input.
// Ctrl+C yields ErrInterrupted; esc and EOF yield nil.
func (l *KeyboardListener) Listen(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		key, err := br.ReadByte()
		if err == io.EOF {
			l.session.Stop()
			return nil
		}
		if err != nil {
			return err
		}
		if key == keyEsc && skipEscapeSequence(br) {
			continue
		}
		if !l.HandleKey(key) {
			if key == keyCtrlC {
				return ErrInterrupted
			}
			return nil
		}
	}
}

// skipEscapeSequence consumes a CSI or SS3 sequence (arrow and function
// keys) that arrived together with a leading ESC. A lone ESC reports false.
func skipEscapeSequence(br *bufio.Reader) bool {
	if br.Buffered() == 0 {
		return false
	}
	next, err := br.Peek(1)
	if err != nil || (next[0] != '[' && next[0] != 'O') {
		return false
	}
	intro, _ := br.ReadByte()
	if intro == 'O' {
		br.ReadByte()
		return true
	}
	// parameter and intermediate bytes, then one final byte in 0x40-0x7e
	for br.Buffered() > 0 {
		b, err := br.ReadByte()
		if err != nil || (b >= 0x40 && b <= 0x7e) {
			break
		}
	}
	return true
}

// Start switches f to raw mode when it is a terminal and runs Listen on
// its own OS thread. The returned channel receives Listen's result once.
// The restore func puts the terminal back and may be called more than once.
func (l *KeyboardListener) Start(f *os.File) (<-chan error, func(), error) {
	fd := int(f.Fd())
	restore := func() {}
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, err
		}
		var once sync.Once
		restore = func() {
			once.Do(func() { term.Restore(fd, oldState) })
		}
	}

	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer restore()
		done <- l.Listen(f)
	}()
	return done, restore, nil
}
