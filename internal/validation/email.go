package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// WHATWG HTML5 valid e-mail address.
var html5EmailRegex = regexp.MustCompile(
	"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?" +
		`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`,
)

var freeEmailDomains = map[string]struct{}{
	"decabg.eu": {}, "gufum.com": {}, "tmail9.com": {}, "ema-sofia.eu": {}, "dropsin.net": {},
	"finews.biz": {}, "triots.com": {}, "rungel.net": {}, "jollyfree.com": {}, "gotgel.org": {},
	"prolug.com": {}, "tmail.com": {}, "tempmail.com": {}, "tmail1.com": {}, "tmail2.com": {},
	"tmail3.com": {}, "tmail4.com": {}, "tmail5.com": {}, "tmail6.com": {}, "tmail7.com": {},
	"tmail8.com": {}, "lyricspad.net": {}, "lyft.live": {}, "dewareff.com": {}, "kaftee.com": {},
	"letpays.com": {},
}

var exampleEmailDomains = map[string]struct{}{
	"example": {},
	"test":    {},
}

var (
	ErrEmailRequired   = errors.New("this field is required")
	ErrEmailInvalid    = errors.New("enter a valid email address")
	ErrEmailFree       = errors.New("registration using free email addresses is prohibited")
	ErrEmailExample    = errors.New("registration using unresolvable example email addresses is prohibited")
	ErrEmailConfusable = errors.New("this email address cannot be registered")
	ErrEmailRestricted = errors.New("that email address cannot be used")
	ErrEmailInUse      = errors.New("that email address is already in use by another user")
)

// Domain is an e-mail domain split around its public suffix.
type Domain struct {
	Subdomain string
	Name      string
	Suffix    string
}

// FQDN joins the non-empty parts back together.
func (d Domain) FQDN() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Subdomain, d.Name, d.Suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// SplitDomain separates host into subdomain, registrable label and public suffix.
func SplitDomain(host string) Domain {
	host = strings.Trim(strings.ToLower(host), ".")
	suffix, _ := publicsuffix.PublicSuffix(host)
	if suffix == host {
		return Domain{Suffix: suffix}
	}
	rest := strings.TrimSuffix(host, "."+suffix)
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		return Domain{Subdomain: rest[:i], Name: rest[i+1:], Suffix: suffix}
	}
	return Domain{Name: rest, Suffix: suffix}
}

// SplitEmail splits at the last '@'. ok is false unless exactly one '@' is present.
func SplitEmail(email string) (local, domain string, ok bool) {
	if strings.Count(email, "@") != 1 {
		return "", "", false
	}
	i := strings.LastIndexByte(email, '@')
	return email[:i], email[i+1:], true
}

// IsFreeEmail reports whether the address is hosted by a disposable mail provider.
func IsFreeEmail(email string) bool {
	_, domain, ok := SplitEmail(email)
	if !ok {
		return false
	}
	_, found := freeEmailDomains[strings.ToLower(domain)]
	return found
}

// IsExampleEmail reports whether the address uses a placeholder domain such as example.com.
func IsExampleEmail(email string) bool {
	_, domain, ok := SplitEmail(email)
	if !ok {
		return false
	}
	_, found := exampleEmailDomains[SplitDomain(domain).Name]
	return found
}

// IsDangerousEmail applies IsDangerous to the local part and the domain separately.
func IsDangerousEmail(email string) bool {
	local, domain, ok := SplitEmail(email)
	if !ok {
		return false
	}
	return IsDangerous(local) || IsDangerous(domain)
}

// CheckEmail applies every context-free e-mail rule and returns all violations.
func CheckEmail(email string) []error {
	if email == "" {
		return []error{ErrEmailRequired}
	}

	var errs []error
	if !html5EmailRegex.MatchString(email) {
		errs = append(errs, ErrEmailInvalid)
	}
	if IsFreeEmail(email) {
		errs = append(errs, ErrEmailFree)
	}
	if IsDangerousEmail(email) {
		errs = append(errs, ErrEmailConfusable)
	}
	if IsExampleEmail(email) {
		errs = append(errs, ErrEmailExample)
	}
	return errs
}

// NormalizedEmail is an address after canonicalization.
type NormalizedEmail struct {
	Local  string
	Domain Domain
}

func (n NormalizedEmail) String() string {
	return n.Local + "@" + n.Domain.FQDN()
}

// Key is the local part joined to the registrable domain label, ignoring subdomain and suffix.
func (n NormalizedEmail) Key() string {
	return n.Local + "@" + n.Domain.Name
}

// NormalizeEmail strips dots and any '+' alias from the local part, lowercases the
// address and folds googlemail onto gmail. Addresses without exactly one '@' are returned lowercased.
func NormalizeEmail(email string) (NormalizedEmail, bool) {
	local, domain, ok := SplitEmail(strings.ToLower(strings.TrimSpace(email)))
	if !ok {
		return NormalizedEmail{Local: strings.ToLower(email)}, false
	}
	local = strings.ReplaceAll(local, ".", "")
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[:i]
	}
	d := SplitDomain(domain)
	if d.Name == "googlemail" {
		d.Name = "gmail"
	}
	return NormalizedEmail{Local: local, Domain: d}, true
}

// IsGoogleMail reports whether the normalized domain belongs to Google's mail service.
func (n NormalizedEmail) IsGoogleMail() bool {
	return n.Domain.Name == "gmail"
}
