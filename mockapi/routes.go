package mockapi

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("POST "+s.basePath+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware(s.basePath+RouteLogin)...))
	s.RegisterRouteHandler("POST "+s.basePath+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware(s.basePath+RouteRegister)...))
	s.RegisterRouteHandler("POST "+s.basePath+RouteRefreshToken, ChainMiddleware(s.RefreshTokenHandler(), s.APIMiddleware(s.basePath+RouteRefreshToken)...))

	// Bearer protected routes
	s.RegisterRouteHandler("POST "+s.basePath+RouteSwitchCompany, ChainMiddleware(s.SwitchCompanyHandler(), s.APIMiddleware(s.basePath+RouteSwitchCompany, s.RequireBearer)...))
	s.RegisterRouteHandler("POST "+s.basePath+RouteVerifyPassword, ChainMiddleware(s.VerifyPasswordHandler(), s.APIMiddleware(s.basePath+RouteVerifyPassword, s.RequireBearer)...))
	s.RegisterRouteHandler("GET "+RouteCompanies, ChainMiddleware(s.CompaniesHandler(), s.APIMiddleware(RouteCompanies, s.RequireBearer)...))
}
