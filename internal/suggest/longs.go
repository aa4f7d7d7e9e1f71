package suggest

// LongS is the historical long-s glyph that OCR engines usually read as "f".
const LongS = 'ſ'

// NormalizeLongS replaces each "f" or "ſ" with "s" unless it follows an "f" or "s",
// or precedes an "f", a hyphen, an apostrophe or the end of the word. Those are the
// positions where printers never set a long s. Upper-case "F" is left alone.
func NormalizeLongS(word string) string {
	return convertLongS(word, 's')
}

// RestoreLongS is NormalizeLongS writing the long-s glyph instead of "s", for
// diplomatic transcriptions.
func RestoreLongS(word string) string {
	return convertLongS(word, LongS)
}

func convertLongS(word string, replacement rune) string {
	in := []rune(word)
	out := make([]rune, len(in))
	copy(out, in)
	for i, r := range in {
		if r != 'f' && r != LongS {
			continue
		}
		if i > 0 && (in[i-1] == 'f' || in[i-1] == 's') {
			continue
		}
		if i == len(in)-1 {
			continue
		}
		switch in[i+1] {
		case 'f', '-', '\'':
			continue
		}
		out[i] = replacement
	}
	return string(out)
}
