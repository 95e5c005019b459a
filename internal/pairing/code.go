// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package pairing implements the pairing-code codec: a base-32 rendering
// of {IPv4 address, port, optional SSS byte} with compressed encodings for
// the private address classes.
//
// Bits are packed least-significant-first into an integer which is then
// rendered in a Crockford-style alphabet (no I, L, O, U). The decoder
// inverts the layout exactly and rejects codes with leftover high bits.
package pairing

import (
	"fmt"
	"strings"
)

// DefaultPort is the port assumed when the code carries none.
const DefaultPort = 48875

// alphabet is base-32 with the confusable letters removed.
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Code is a decoded pairing code: an IPv4 address, a port, and an
// optional single shared secret byte.
type Code struct {
	IP   [4]byte
	Port uint16
	SSS  *byte
}

// bitWriter packs values LSB-first into an integer.
type bitWriter struct {
	data uint64
	pos  uint
}

func (w *bitWriter) write(v uint64, bits uint) {
	mask := uint64(1)<<bits - 1
	w.data |= (v & mask) << w.pos
	w.pos += bits
}

// bitReader unpacks values in the order they were written.
type bitReader struct {
	data uint64
	pos  uint
}

func (r *bitReader) read(bits uint) uint64 {
	mask := uint64(1)<<bits - 1
	v := (r.data >> r.pos) & mask
	r.pos += bits
	return v
}

func (r *bitReader) remainder() uint64 {
	return r.data >> r.pos
}

// Encode renders the code. With shortcuts enabled the private address
// classes use their compressed layouts; with shortcuts disabled every
// address falls through to the general four-octet form, which is longer
// but decodes identically.
func (c Code) Encode(shortcuts bool) string {
	a, b, cc, d := uint64(c.IP[0]), uint64(c.IP[1]), uint64(c.IP[2]), uint64(c.IP[3])

	var w bitWriter
	w.write(0, 1) // code version signal
	if c.SSS != nil {
		w.write(1, 1)
		w.write(uint64(*c.SSS), 8)
	} else {
		w.write(0, 1)
	}

	switch {
	case shortcuts && a == 192 && b == 168:
		w.write(0, 2)
		switch cc {
		case 0:
			w.write(0, 2)
		case 1:
			w.write(1, 2)
		case 2:
			w.write(2, 2)
		default:
			w.write(3, 2)
			w.write(cc, 8)
		}
		w.write(d, 8)

	case shortcuts && a == 172 && b >= 16 && b <= 31:
		w.write(1, 2)
		w.write(d, 8)
		w.write(cc, 8)
		w.write(b-16, 4)

	case shortcuts && a == 10:
		w.write(2, 2)
		w.write(d, 8)
		w.write(cc, 8)
		w.write(b, 8)

	default:
		w.write(3, 2)
		w.write(d, 8)
		w.write(cc, 8)
		w.write(b, 8)
		w.write(a, 8)
	}

	if c.Port != DefaultPort {
		w.write(1, 1)
		w.write(uint64(c.Port), 16)
	}

	return base32Encode(w.data)
}

// Decode parses a pairing code back into its address, port and SSS.
func Decode(code string) (Code, error) {
	data, err := base32Decode(code)
	if err != nil {
		return Code{}, err
	}
	r := &bitReader{data: data}

	if r.read(1) == 1 {
		return Code{}, fmt.Errorf("pairing code is in an unknown format")
	}

	var c Code
	if r.read(1) == 1 {
		sss := byte(r.read(8))
		c.SSS = &sss
	}

	var a, b, cc, d uint64
	switch r.read(2) {
	case 0:
		a, b = 192, 168
		switch r.read(2) {
		case 0:
			cc = 0
		case 1:
			cc = 1
		case 2:
			cc = 2
		default:
			cc = r.read(8)
		}
		d = r.read(8)
	case 1:
		d = r.read(8)
		cc = r.read(8)
		b = r.read(4) + 16
		a = 172
	case 2:
		d = r.read(8)
		cc = r.read(8)
		b = r.read(8)
		a = 10
	default:
		d = r.read(8)
		cc = r.read(8)
		b = r.read(8)
		a = r.read(8)
	}

	if r.read(1) == 1 {
		c.Port = uint16(r.read(16))
	} else {
		c.Port = DefaultPort
	}

	if r.remainder() != 0 {
		return Code{}, fmt.Errorf("pairing code has trailing data")
	}

	c.IP = [4]byte{byte(a), byte(b), byte(cc), byte(d)}
	return c, nil
}

// String renders the address and port of the code.
func (c Code) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", c.IP[0], c.IP[1], c.IP[2], c.IP[3], c.Port)
}

func base32Encode(data uint64) string {
	if data == 0 {
		return "0"
	}
	var out []byte
	for data > 0 {
		out = append(out, alphabet[data%32])
		data /= 32
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base32Decode(code string) (uint64, error) {
	code = strings.ToUpper(code)
	var data uint64
	for _, ch := range code {
		idx := strings.IndexRune(alphabet, ch)
		if idx < 0 {
			return 0, fmt.Errorf("pairing code contains invalid character %q", ch)
		}
		data = data*32 + uint64(idx)
	}
	return data, nil
}
