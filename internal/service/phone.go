package service

import (
	"regexp"
	"strings"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
)

// Safaricom/Airtel mobile ranges in international form: 2547XXXXXXXX, 2541XXXXXXXX.
var mobileNumber = regexp.MustCompile(`^254[17]\d{8}$`)

var phoneStripper = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone converts the local forms (07.., 01.., 7.., +254..) into the
// 12-digit international form the gateway expects.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimPrefix(phoneStripper.Replace(strings.TrimSpace(raw)), "+")
	switch {
	case len(s) == 10 && s[0] == '0':
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}
	if !mobileNumber.MatchString(s) {
		return "", apierror.Validation("invalid mobile number %q", raw)
	}
	return s, nil
}
