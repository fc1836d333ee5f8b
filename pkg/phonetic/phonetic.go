// Package phonetic provides the Soundex, Metaphone, and NYSIIS encodings used
// by blocking keys and similarity signals.
package phonetic

import (
	"strings"
	"unicode"
)

// Soundex calculates the Soundex encoding of a string.
// The code is the first letter followed by three digits, zero padded.
func Soundex(str string) string {
	if len(str) == 0 {
		return ""
	}

	str = strings.ToUpper(str)

	// Keep the first letter
	result := string(str[0])
	prevCode := soundexCode(rune(str[0]))

	for i := 1; i < len(str) && len(result) < 4; i++ {
		char := rune(str[i])
		if !unicode.IsLetter(char) {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	// Pad with zeros
	for len(result) < 4 {
		result += "0"
	}

	return result
}

// soundexCode returns the Soundex digit for a character
func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

// Metaphone calculates a simplified Metaphone encoding, capped at 6 codes.
func Metaphone(str string) string {
	if len(str) == 0 {
		return ""
	}

	str = strings.ToUpper(str)

	// Remove non-alphabetic characters
	var letters strings.Builder
	for _, char := range str {
		if unicode.IsLetter(char) && char < 128 {
			letters.WriteRune(char)
		}
	}
	str = letters.String()

	if len(str) == 0 {
		return ""
	}

	var metaphone strings.Builder
	prevCode := byte(0)

	for i := 0; i < len(str) && metaphone.Len() < 6; i++ {
		char := str[i]
		code := metaphoneCode(char, i, str)

		if code != 0 && code != prevCode {
			metaphone.WriteByte(code)
			prevCode = code
		}
	}

	return metaphone.String()
}

// metaphoneCode returns the Metaphone code for a character
func metaphoneCode(char byte, pos int, word string) byte {
	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		return 'B'
	case 'C':
		if pos+1 < len(word) && (word[pos+1] == 'I' || word[pos+1] == 'E' || word[pos+1] == 'Y') {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'F':
		return 'F'
	case 'G':
		return 'J'
	case 'H':
		return 0 // Usually silent
	case 'J':
		return 'J'
	case 'K':
		return 'K'
	case 'L':
		return 'L'
	case 'M':
		return 'M'
	case 'N':
		return 'N'
	case 'P':
		if pos+1 < len(word) && word[pos+1] == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'R':
		return 'R'
	case 'S':
		return 'S'
	case 'T':
		return 'T'
	case 'V':
		return 'F'
	case 'W':
		return 0
	case 'X':
		return 'S'
	case 'Y':
		return 0
	case 'Z':
		return 'S'
	default:
		return 0
	}
}

// NYSIIS calculates the NYSIIS encoding of a string. It handles name
// prefixes/suffixes better than Soundex for person names.
func NYSIIS(str string) string {
	var letters []byte
	for _, char := range strings.ToUpper(str) {
		if char >= 'A' && char <= 'Z' {
			letters = append(letters, byte(char))
		}
	}
	if len(letters) == 0 {
		return ""
	}

	word := string(letters)

	// Leading transcodes
	switch {
	case strings.HasPrefix(word, "MAC"):
		word = "MCC" + word[3:]
	case strings.HasPrefix(word, "KN"):
		word = "NN" + word[2:]
	case strings.HasPrefix(word, "K"):
		word = "C" + word[1:]
	case strings.HasPrefix(word, "PH"), strings.HasPrefix(word, "PF"):
		word = "FF" + word[2:]
	case strings.HasPrefix(word, "SCH"):
		word = "SSS" + word[3:]
	}

	// Trailing transcodes
	switch {
	case strings.HasSuffix(word, "EE"), strings.HasSuffix(word, "IE"):
		word = word[:len(word)-2] + "Y"
	case strings.HasSuffix(word, "DT"), strings.HasSuffix(word, "RT"),
		strings.HasSuffix(word, "RD"), strings.HasSuffix(word, "NT"),
		strings.HasSuffix(word, "ND"):
		word = word[:len(word)-2] + "D"
	}

	key := []byte{word[0]}

	for i := 1; i < len(word); i++ {
		var code string
		switch {
		case i+1 < len(word) && word[i] == 'E' && word[i+1] == 'V':
			code = "AF"
			i++
		case isVowel(word[i]):
			code = "A"
		case word[i] == 'Q':
			code = "G"
		case word[i] == 'Z':
			code = "S"
		case word[i] == 'M':
			code = "N"
		case i+1 < len(word) && word[i] == 'K' && word[i+1] == 'N':
			code = "N"
			i++
		case word[i] == 'K':
			code = "C"
		case i+2 < len(word) && word[i] == 'S' && word[i+1] == 'C' && word[i+2] == 'H':
			code = "SSS"
			i += 2
		case i+1 < len(word) && word[i] == 'P' && word[i+1] == 'H':
			code = "FF"
			i++
		case word[i] == 'H' && (!isVowel(word[i-1]) || i+1 >= len(word) || !isVowel(word[i+1])):
			if isVowel(word[i-1]) {
				code = "A"
			} else {
				code = string(word[i-1])
			}
		case word[i] == 'W' && isVowel(word[i-1]):
			code = "A"
		default:
			code = string(word[i])
		}

		for j := 0; j < len(code); j++ {
			if key[len(key)-1] != code[j] {
				key = append(key, code[j])
			}
		}
	}

	// Trailing cleanup: drop S, AY becomes Y, drop A
	if len(key) > 1 && key[len(key)-1] == 'S' {
		key = key[:len(key)-1]
	}
	if len(key) > 2 && key[len(key)-2] == 'A' && key[len(key)-1] == 'Y' {
		key = append(key[:len(key)-2], 'Y')
	}
	if len(key) > 1 && key[len(key)-1] == 'A' {
		key = key[:len(key)-1]
	}

	return string(key)
}

func isVowel(c byte) bool {
	return c == 'A' || c == 'E' || c == 'I' || c == 'O' || c == 'U'
}
