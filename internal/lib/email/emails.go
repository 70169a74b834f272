package email

import "context"

// SendWelcomeEmail greets a user after their first login.
func (c *Client) SendWelcomeEmail(ctx context.Context, to, firstName string) error {
	data := map[string]string{
		"UserFirstName": firstName,
		"AppName":       c.appName,
		"SiteURL":       c.siteURL,
	}

	return c.SendEmail(ctx, to, "Welcome to "+c.appName+"!", TemplateWelcome, data)
}
