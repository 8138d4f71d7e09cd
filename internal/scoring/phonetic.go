package scoring

import "strings"

// codeLen is the fixed length of a non-empty phonetic code.
const codeLen = 4

// PhoneticCode returns the 4-character consonant-class code of word.
//
// Non-letters are ignored. The first letter is kept as-is (upper-cased) and
// every following letter is mapped to a digit class. A digit is appended only
// when it is nonzero and differs from the class of the letter directly before
// it, so vowels separate repeated classes. The result is padded with '0' and
// truncated to four characters. A word without letters yields "".
func PhoneticCode(word string) string {
	letters := make([]byte, 0, len(word))
	for _, r := range strings.ToUpper(foldDiacritics(word)) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, byte(r))
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := make([]byte, 0, codeLen+len(letters))
	code = append(code, letters[0])
	prev := digitClass(letters[0])
	for _, c := range letters[1:] {
		d := digitClass(c)
		if d != 0 && d != prev {
			code = append(code, '0'+d)
		}
		prev = d
	}
	for len(code) < codeLen {
		code = append(code, '0')
	}
	return string(code[:codeLen])
}

func digitClass(c byte) byte {
	switch c {
	case 'B', 'F', 'P', 'V':
		return 1
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return 2
	case 'D', 'T':
		return 3
	case 'L':
		return 4
	case 'M', 'N':
		return 5
	case 'R':
		return 6
	default:
		return 0
	}
}
