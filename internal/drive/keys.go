// Package drive turns keyboard input into PowerUp motor and rudder commands.
package drive

// Key is a decoded driving command.
type Key int

const (
	KeyNone Key = iota
	KeyFaster
	KeySlower
	KeyLeft
	KeyRight
	KeyCenter
	KeyStop
	KeyQuit
)

func (k Key) String() string {
	switch k {
	case KeyFaster:
		return "faster"
	case KeySlower:
		return "slower"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyCenter:
		return "center"
	case KeyStop:
		return "stop"
	case KeyQuit:
		return "quit"
	default:
		return "none"
	}
}

// KeyDecoder decodes raw terminal input. Arrow keys arrive as ESC [ A..D
// (or ESC O A..D in application mode); unknown bytes are ignored. An escape
// sequence split across reads is completed by the next Decode call.
type KeyDecoder struct {
	pending []byte
}

// Decode returns the keys in buf.
func (d *KeyDecoder) Decode(buf []byte) []Key {
	data := buf
	if len(d.pending) > 0 {
		data = append(d.pending, buf...)
		d.pending = nil
	}

	var keys []Key
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == 0x1b {
			if i+1 == len(data) {
				d.pending = []byte{0x1b}
				break
			}
			if data[i+1] != '[' && data[i+1] != 'O' {
				continue // bare ESC
			}
			if i+2 == len(data) {
				d.pending = []byte{0x1b, data[i+1]}
				break
			}
			if k := arrowKey(data[i+2]); k != KeyNone {
				keys = append(keys, k)
			}
			i += 2
			continue
		}

		if k := plainKey(b); k != KeyNone {
			keys = append(keys, k)
		}
	}
	return keys
}

// DecodeKeys decodes one self-contained buffer.
func DecodeKeys(buf []byte) []Key {
	var d KeyDecoder
	return d.Decode(buf)
}

func arrowKey(b byte) Key {
	switch b {
	case 'A':
		return KeyFaster
	case 'B':
		return KeySlower
	case 'C':
		return KeyRight
	case 'D':
		return KeyLeft
	}
	return KeyNone
}

func plainKey(b byte) Key {
	switch b {
	case 'w', 'W':
		return KeyFaster
	case 's', 'S':
		return KeySlower
	case 'a', 'A':
		return KeyLeft
	case 'd', 'D':
		return KeyRight
	case 'c', 'C':
		return KeyCenter
	case ' ':
		return KeyStop
	case 'q', 'Q', 0x03, 0x04: // Ctrl+C, Ctrl+D
		return KeyQuit
	}
	return KeyNone
}
