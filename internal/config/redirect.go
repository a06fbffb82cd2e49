package config

// RequestOrigin carries the forwarded proto/host headers of the request
// that initiated a login, when a proxy supplied them.
type RequestOrigin struct {
	Proto string // X-Forwarded-Proto
	Host  string // X-Forwarded-Host or Host
}

// redirectStrategy returns the callback URL or "" when the strategy
// does not apply.
type redirectStrategy func(origin RequestOrigin) string

// Redirect resolves the OAuth callback URL for a request. Precedence:
// request-derived headers, then the configured override, then the
// production fallback. The first strategy that applies wins.
func (c Config) Redirect(origin RequestOrigin) string {
	strategies := []redirectStrategy{
		headerDerived,
		c.overrideRedirect,
		c.fallbackRedirect,
	}
	for _, s := range strategies {
		if url := s(origin); url != "" {
			return url
		}
	}
	return c.RedirectFallback
}

func headerDerived(origin RequestOrigin) string {
	if origin.Host == "" {
		return ""
	}
	proto := origin.Proto
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + origin.Host + "/oauth/callback"
}

func (c Config) overrideRedirect(RequestOrigin) string {
	return c.RedirectOverride
}

func (c Config) fallbackRedirect(RequestOrigin) string {
	return c.RedirectFallback
}
