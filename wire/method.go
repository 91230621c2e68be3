package wire

// Method is a request method. Tokens outside the standard set are MethodExtension when the parser's limits
// admit them.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
	MethodOptions
	MethodTrace
	MethodConnect
	MethodExtension
)

var methodNames = [...]string{
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodPatch:   "PATCH",
	MethodDelete:  "DELETE",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodConnect: "CONNECT",
}

func (m Method) String() string {
	if m > MethodUnknown && m < MethodExtension {
		return methodNames[m]
	}
	if m == MethodExtension {
		return "EXTENSION"
	}
	return "UNKNOWN"
}

// ParseMethod recognizes the standard methods. Methods are case-sensitive.
func ParseMethod(b []byte) Method {
	for m := MethodGet; m < MethodExtension; m++ {
		if string(b) == methodNames[m] {
			return m
		}
	}
	return MethodUnknown
}

func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !tokenTable[c] {
			return false
		}
	}
	return true
}

var tokenTable = func() (t [256]bool) {
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
		t[c-'a'+'A'] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return t
}()
