package httputil

// Cookie names shared by the identity handler and the test client.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"
)

// CSRFTokenHeader must echo the csrf_token cookie on state-changing
// cookie-authenticated requests.
const CSRFTokenHeader = "X-CSRF-Token"
