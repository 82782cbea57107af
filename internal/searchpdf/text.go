package searchpdf

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// helveticaWidths are glyph advances (1/1000 em) for printable ASCII,
// indexed from 0x20.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space - /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0-9
	278, 278, 584, 584, 584, 556, 1015, // : ; < = > ? @
	667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A-M
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N-Z
	278, 278, 278, 469, 556, 333, // [ \ ] ^ _ `
	556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a-m
	556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n-z
	334, 260, 334, 584, // { | } ~
}

const defaultGlyphWidth = 556

// textWidth is the advance of s (WinAnsi bytes) at 1pt in Helvetica.
func textWidth(s []byte) float64 {
	total := 0
	for _, c := range s {
		if c >= 0x20 && c <= 0x7E {
			total += helveticaWidths[c-0x20]
		} else {
			total += defaultGlyphWidth
		}
	}
	return float64(total) / 1000
}

var winAnsi = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())

// encodeWinAnsi converts UTF-8 text to the font's single-byte encoding.
// Characters outside Windows-1252 become '?'.
func encodeWinAnsi(s string) []byte {
	out, err := winAnsi.Bytes([]byte(s))
	if err != nil {
		return []byte(strings.Map(func(r rune) rune {
			if r > 0x7E {
				return '?'
			}
			return r
		}, s))
	}
	return out
}

// literal renders bytes as a PDF literal string.
func literal(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, c := range b {
		switch {
		case c == '(' || c == ')' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20 || c > 0x7E:
			fmt.Fprintf(&sb, "\\%03o", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// textString renders s for the document info dictionary: a literal for
// ASCII, UTF-16BE with a byte-order mark otherwise.
func textString(s string) string {
	ascii := true
	for _, r := range s {
		if r > 0x7E || r < 0x20 {
			ascii = false
			break
		}
	}
	if ascii {
		return literal([]byte(s))
	}
	var sb strings.Builder
	sb.WriteString("<FEFF")
	for _, u := range utf16.Encode([]rune(s)) {
		fmt.Fprintf(&sb, "%04X", u)
	}
	sb.WriteByte('>')
	return sb.String()
}

// pdfDate formats t as D:YYYYMMDDHHmmSSZ in UTC.
func pdfDate(t time.Time) string {
	return "D:" + t.UTC().Format("20060102150405") + "Z"
}

// num formats a coordinate with at most two decimals.
func num(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}
