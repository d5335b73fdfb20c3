package dom

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// Origin is either a (scheme, host) tuple or an opaque origin. Opaque
// origins are only ever same-origin with themselves.
type Origin struct {
	scheme string
	host   string
	opaque uint64
}

var opaqueSeq atomic.Uint64

func OpaqueOrigin() Origin {
	return Origin{opaque: opaqueSeq.Add(1)}
}

func OriginOf(u *url.URL) Origin {
	if u == nil {
		return OpaqueOrigin()
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "ws", "wss", "ftp":
		return Origin{scheme: scheme, host: strings.ToLower(hostWithoutDefaultPort(u))}
	case "file":
		return Origin{scheme: scheme}
	default:
		return OpaqueOrigin()
	}
}

func (o Origin) IsOpaque() bool {
	return o.opaque != 0
}

func (o Origin) SameOrigin(other Origin) bool {
	if o.opaque != 0 || other.opaque != 0 {
		return o.opaque == other.opaque
	}
	return o.scheme == other.scheme && o.host == other.host
}

func (o Origin) String() string {
	if o.opaque != 0 {
		return "null"
	}
	return o.scheme + "://" + o.host
}

func hostWithoutDefaultPort(u *url.URL) string {
	port := u.Port()
	switch {
	case port == "":
		return u.Host
	case port == "80" && (u.Scheme == "http" || u.Scheme == "ws"):
		return u.Hostname()
	case port == "443" && (u.Scheme == "https" || u.Scheme == "wss"):
		return u.Hostname()
	}
	return u.Host
}
