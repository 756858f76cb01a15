package api

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var kePhoneRe = regexp.MustCompile(`^(?:\+254|254|0)(7\d{8}|1\d{8})$`)

func (s *Server) formatDateCompact(d time.Time) string {
	if s.location == nil {
		return d.Format("02 Jan")
	}
	return d.In(s.location).Format("02 Jan")
}

func (s *Server) formatMoney(v float64) string {
	return s.defaultCurrency + " " + trimZero(v)
}

func trimZero(v float64) string {
	out := strconv.FormatFloat(v, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}

func normalizeKenyaPhone(raw string) (string, bool) {
	v := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if v == "" {
		return "", true
	}
	if !kePhoneRe.MatchString(v) {
		return "", false
	}
	if strings.HasPrefix(v, "0") {
		return "+254" + v[1:], true
	}
	if strings.HasPrefix(v, "254") {
		return "+" + v, true
	}
	return v, true
}
