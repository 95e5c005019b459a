// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package xmlenc provides the scalar encoding primitives shared by every
// resource representation: XML entity escaping, the protocol's ISO-8601
// timestamp dialect, true/false/0/1 booleans, fixed-point durations and
// volumes, percent-decoding, and id-component validation.
//
// All representations in this server are built by string assembly rather
// than encoding/xml marshalling: the wire format prescribes exact attribute
// ordering and self-closing behaviour that a struct marshaller cannot
// reproduce, so the handlers write elements by hand and rely on this
// package for correctness of the leaf values.
package xmlenc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

	idComponentRe = regexp.MustCompile(`^([a-zA-Z0-9\-\._~]|%[0-9a-fA-F][0-9a-fA-F])+$`)
	volumeRe      = regexp.MustCompile(`^(\+|\-)?(\d*)(\.(\d+))?$`)
)

// EscapeText entity-encodes a string for use as XML character data.
// Escapes &, < and >.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeAttr entity-encodes a string for use as an XML attribute value.
// Escapes &, <, > and the double quote.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// Bool renders a boolean in the protocol's canonical form.
func Bool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// ParseBool parses a protocol boolean. Accepted forms are exactly
// "true", "false", "1" and "0".
func ParseBool(s string) (bool, error) {
	switch s {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// FormatISO renders a UTC timestamp in the dialect used throughout the
// protocol: second precision, microseconds appended only when non-zero,
// and a literal Z suffix.
func FormatISO(t time.Time) string {
	t = t.UTC()
	s := t.Format("2006-01-02T15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s + "Z"
}

// ParseISO parses the protocol's ISO-8601 subset. Date-only, time-only and
// combined forms are accepted; the zone may be absent, "Z", or a +hh[mm] /
// -hh[mm] offset. The result is normalised to UTC.
func ParseISO(ts string) (time.Time, error) {
	if strings.Count(ts, "T") > 1 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", ts)
	}

	var datePart, timePart string
	switch {
	case strings.Count(ts, "T") == 1:
		parts := strings.SplitN(ts, "T", 2)
		datePart, timePart = parts[0], parts[1]
	case strings.Contains(ts, ":"):
		timePart = ts
	default:
		datePart = ts
	}

	year, month, day := 1, time.January, 1
	if datePart != "" {
		fields := strings.Split(datePart, "-")
		if len(fields) != 3 {
			return time.Time{}, fmt.Errorf("invalid date %q", datePart)
		}
		y, err := strconv.Atoi(fields[0])
		if err != nil {
			return time.Time{}, err
		}
		m, err := strconv.Atoi(fields[1])
		if err != nil {
			return time.Time{}, err
		}
		d, err := strconv.Atoi(fields[2])
		if err != nil {
			return time.Time{}, err
		}
		year, month, day = y, time.Month(m), d
	}

	hour, minute, second, micro := 0, 0, 0, 0
	zhour, zminute := 0, 0
	if timePart != "" {
		switch {
		case strings.HasSuffix(timePart, "Z"):
			timePart = timePart[:len(timePart)-1]
		case strings.Count(timePart, "+") == 1:
			parts := strings.SplitN(timePart, "+", 2)
			timePart = parts[0]
			var err error
			zhour, zminute, err = parseZone(parts[1])
			if err != nil {
				return time.Time{}, err
			}
		case strings.Count(timePart, "-") == 1:
			parts := strings.SplitN(timePart, "-", 2)
			timePart = parts[0]
			zh, zm, err := parseZone(parts[1])
			if err != nil {
				return time.Time{}, err
			}
			zhour, zminute = -zh, -zm
		}

		if strings.Count(timePart, ".") == 1 {
			parts := strings.SplitN(timePart, ".", 2)
			timePart = parts[0]
			frac := (parts[1] + "000000")[:6]
			var err error
			micro, err = strconv.Atoi(frac)
			if err != nil {
				return time.Time{}, err
			}
		}

		fields := strings.Split(timePart, ":")
		if len(fields) != 3 {
			return time.Time{}, fmt.Errorf("invalid time %q", timePart)
		}
		var err error
		if hour, err = strconv.Atoi(fields[0]); err != nil {
			return time.Time{}, err
		}
		if minute, err = strconv.Atoi(fields[1]); err != nil {
			return time.Time{}, err
		}
		if second, err = strconv.Atoi(fields[2]); err != nil {
			return time.Time{}, err
		}
	}

	t := time.Date(year, month, day, hour, minute, second, micro*1000, time.UTC)
	return t.Add(-time.Duration(zhour)*time.Hour - time.Duration(zminute)*time.Minute), nil
}

func parseZone(zone string) (int, int, error) {
	if len(zone) < 2 {
		return 0, 0, fmt.Errorf("invalid zone %q", zone)
	}
	h, err := strconv.Atoi(zone[:2])
	if err != nil {
		return 0, 0, err
	}
	m := 0
	if len(zone) > 2 {
		if m, err = strconv.Atoi(zone[len(zone)-2:]); err != nil {
			return 0, 0, err
		}
	}
	return h, m, nil
}

// Duration renders a stored duration (units of 100 microseconds) as
// decimal seconds.
func Duration(v int64) string {
	return fmt.Sprintf("%04.5f", float64(v)/10000.0)
}

// FormatVolume renders a stored volume (0..10000) in the protocol's
// d.dddd decimal form.
func FormatVolume(v int) string {
	return fmt.Sprintf("%01d.%04d", v/10000, v%10000)
}

// ParseVolume parses a d.dddd volume into the stored x10000 integer form.
// Range checking is left to the caller.
func ParseVolume(s string) (int, error) {
	m := volumeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid volume %q", s)
	}
	whole := 0
	if m[2] != "" {
		var err error
		if whole, err = strconv.Atoi(m[2]); err != nil {
			return 0, err
		}
	}
	frac, err := strconv.Atoi((m[4] + "0000")[:4])
	if err != nil {
		return 0, err
	}
	v := 10000*whole + frac
	if m[1] == "-" {
		v = -v
	}
	return v, nil
}

// PercentDecode decodes percent-triples in a string. A literal "%%"
// decodes to "%"; a "%" not followed by two hex digits is an error.
func PercentDecode(input string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(input); {
		if input[i] != '%' {
			out.WriteByte(input[i])
			i++
			continue
		}
		if i+1 < len(input) && input[i+1] == '%' {
			out.WriteByte('%')
			i += 2
			continue
		}
		if i+2 < len(input) && isHex(input[i+1]) && isHex(input[i+2]) {
			v, err := strconv.ParseUint(input[i+1:i+3], 16, 8)
			if err != nil {
				return "", err
			}
			out.WriteByte(byte(v))
			i += 3
			continue
		}
		return "", fmt.Errorf("invalid percent escape at offset %d", i)
	}
	return out.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// IsIDComponent reports whether a string is a valid id-component: one or
// more characters of the unreserved set or percent-triples.
func IsIDComponent(s string) bool {
	return idComponentRe.MatchString(s)
}
