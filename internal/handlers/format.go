package handlers

import (
	"strconv"
	"strings"
	"time"
)

var (
	indonesianDays = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

	indonesianMonths = [...]string{
		"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	}
)

// FormatRupiah renders an amount as "Rp 1.234.567".
func FormatRupiah(amount int64) string {
	sign := ""
	u := uint64(amount)
	if amount < 0 {
		sign = "-"
		u = uint64(-amount)
	}
	digits := strconv.FormatUint(u, 10)

	var b strings.Builder
	b.WriteString("Rp ")
	b.WriteString(sign)
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return b.String()
}

// FormatLongDate renders t as "Senin, 19 Oktober 2026".
func FormatLongDate(t time.Time) string {
	return indonesianDays[t.Weekday()] + ", " + strconv.Itoa(t.Day()) + " " +
		indonesianMonths[t.Month()-1] + " " + strconv.Itoa(t.Year())
}

// parseAmount reads a user-typed amount, ignoring everything but digits,
// so "1.500.000" and "Rp 1.500.000" both give 1500000. Invalid input gives 0.
func parseAmount(s string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// formatPercent renders a share with at most one decimal: 25, 33.3.
func formatPercent(f float64) string {
	s := strconv.FormatFloat(f, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}
