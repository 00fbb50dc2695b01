package mockapi

// Auth routes, relative to the auth base path.
const (
	RouteLogin          = "/login"
	RouteRegister       = "/register"
	RouteRefreshToken   = "/refresh_token"
	RouteSwitchCompany  = "/switch_company"
	RouteVerifyPassword = "/verify-password"
)

// RouteCompanies is a protected application resource outside the auth base path.
const RouteCompanies = "/api/v2/companies"

// RefreshCookieName is the HTTP-only cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"
