package email

// PreviewData holds sample values for rendering each template locally.
var PreviewData = map[Template]map[string]string{
	TemplateWelcome: {
		"UserFirstName": "Ada",
		"AppName":       "graphile-starter",
		"SiteURL":       "http://localhost:8080",
	},
}
