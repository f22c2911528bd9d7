package timeparse

import (
	"strconv"
	"strings"
)

var zhDigits = []string{"", "一", "二", "三", "四", "五", "六", "七", "八", "九"}

// numeralTable maps Chinese spellings of 1..60 to their value: 五, 十, 十五,
// 二十, 二十一, ..., 六十. 两/兩 are accepted as 2.
var numeralTable = buildNumeralTable(60)

func buildNumeralTable(limit int) map[string]int {
	t := make(map[string]int, limit+2)
	for n := 1; n <= limit; n++ {
		tens, ones := n/10, n%10
		var b strings.Builder
		switch {
		case tens == 0:
		case tens == 1:
			b.WriteString("十")
		default:
			b.WriteString(zhDigits[tens])
			b.WriteString("十")
		}
		b.WriteString(zhDigits[ones])
		t[b.String()] = n
	}
	t["两"] = 2
	t["兩"] = 2
	return t
}

// TranslateNumeral resolves a quantity token: the Chinese numeral table
// first, then a plain decimal integer. Anything else, including signs, is
// not a numeral.
func TranslateNumeral(tok string) (int, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, false
	}
	if n, ok := numeralTable[tok]; ok {
		return n, true
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

// clockNumber is TranslateNumeral extended with zero, for clock fields:
// 零点, 十点零五.
func clockNumber(tok string) (int, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "零" || tok == "〇" {
		return 0, true
	}
	tok = strings.TrimLeft(tok, "零〇")
	if tok == "" {
		return 0, false
	}
	return TranslateNumeral(tok)
}
