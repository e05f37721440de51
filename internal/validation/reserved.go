package validation

import "strings"

var specialHostnames = []string{
	"autoconfig", "autodiscover", "broadcasthost", "isatap", "localdomain", "localhost", "wpad",
}

var protocolHostnames = []string{
	"css", "ftp", "html", "http", "https", "imap", "ip", "iscsi", "js", "mail", "news", "ntp",
	"pop", "pop3", "smtp", "ssl", "tcp", "tls", "udp", "usenet", "uucp", "webmail", "www", "www3",
}

// Mailbox names certificate authorities use during domain verification.
var caAddresses = []string{
	"admin", "administrator", "hostmaster", "info", "is", "it", "mis", "postmaster", "root",
	"ssladmin", "ssladministrator", "sslwebmaster", "sysadmin", "webmaster",
}

var rfc2142Names = []string{
	"abuse", "marketing", "noc", "sales", "security", "support",
}

var noreplyAddresses = []string{
	"mailer-daemon", "nobody", "noreply", "no-reply",
}

var sensitiveFilenames = []string{
	"clientaccesspolicy.xml", "crossdomain.xml", "favicon.ico", "humans.txt", "keybase.txt",
	"robots.txt", ".htaccess", ".htpasswd",
}

var otherSensitiveNames = []string{
	"account", "accounts", "auth", "authorize", "blog", "buy", "cart", "clients", "config",
	"contact", "contactus", "contact-us", "copyright", "dashboard", "doc", "docs", "download",
	"downloads", "enquiry", "faq", "help", "inquiry", "information", "license", "login", "logout",
	"me", "myaccount", "moderator", "oauth", "pay", "payment", "payments", "plans", "portfolio",
	"preferences", "price", "pricing", "privacy", "profile", "register", "report", "secure",
	"settings", "shop", "shopping", "signin", "signup", "status", "store", "subscribe", "terms",
	"test", "tos", "user", "users", "weblog", "work",
}

// ReservedNames is a set of usernames that can never be registered.
type ReservedNames struct {
	names     map[string]struct{}
	skeletons map[string]struct{}
}

// NewReservedNames builds the default reserved set plus custom additions.
func NewReservedNames(custom ...string) *ReservedNames {
	r := &ReservedNames{
		names:     make(map[string]struct{}),
		skeletons: make(map[string]struct{}),
	}
	for _, group := range [][]string{
		specialHostnames, protocolHostnames, caAddresses, rfc2142Names,
		noreplyAddresses, sensitiveFilenames, otherSensitiveNames, custom,
	} {
		for _, name := range group {
			r.add(name)
		}
	}
	return r
}

func (r *ReservedNames) add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	r.names[name] = struct{}{}
	r.skeletons[Skeleton(name)] = struct{}{}
}

// IsReserved reports whether name is reserved, directly or through a confusable spelling.
func (r *ReservedNames) IsReserved(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, ".well-known") {
		return true
	}
	if _, ok := r.names[lower]; ok {
		return true
	}
	_, ok := r.skeletons[Skeleton(name)]
	return ok
}

// Len returns the number of reserved names.
func (r *ReservedNames) Len() int {
	return len(r.names)
}
