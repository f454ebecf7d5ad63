package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/container"
	"github.com/exprsn/platform/cmd/platform/handlers"
	"github.com/exprsn/platform/cmd/platform/middleware"
)

// RegisterGitRoutes registers pull request and credential routes
func RegisterGitRoutes(e *echo.Echo, c *container.Container) {
	prs := handlers.NewPullRequestHandler(c.PullRequests)

	pulls := e.Group("/git/api/repositories/:id/pulls", middleware.RequireUserID())
	{
		pulls.POST("", prs.Create)                                // POST /git/api/repositories/{id}/pulls
		pulls.GET("", prs.List)                                   // GET /git/api/repositories/{id}/pulls?state=open
		pulls.GET("/:number", prs.Get)                            // GET /git/api/repositories/{id}/pulls/{number}
		pulls.POST("/:number/ready", prs.MarkReady)               // POST .../pulls/{number}/ready
		pulls.POST("/:number/reviewers", prs.RequestReview)       // POST .../pulls/{number}/reviewers
		pulls.POST("/:number/reviews", prs.SubmitReview)          // POST .../pulls/{number}/reviews
		pulls.POST("/:number/ci-status", prs.UpdateCIStatus)      // POST .../pulls/{number}/ci-status
		pulls.POST("/:number/merge", prs.Merge)                   // POST .../pulls/{number}/merge
		pulls.POST("/:number/close", prs.Close)                   // POST .../pulls/{number}/close
	}

	creds := handlers.NewCredentialHandler(c.Credentials)

	// verification is called by the git transport and the OAuth server
	e.POST("/git/api/credentials/verify/:kind", creds.Verify)

	vault := e.Group("/git/api/credentials", middleware.RequireUserID())
	{
		vault.POST("/ssh-keys", creds.AddSSHKey)
		vault.GET("/ssh-keys", creds.ListSSHKeys)
		vault.DELETE("/ssh-keys/:keyId", creds.DeleteSSHKey)

		vault.POST("/tokens", creds.GenerateToken)
		vault.GET("/tokens", creds.ListTokens)
		vault.DELETE("/tokens/:tokenId", creds.RevokeToken)

		vault.POST("/oauth-apps", creds.RegisterOAuthApp)
		vault.GET("/oauth-apps", creds.ListOAuthApps)
		vault.PUT("/oauth-apps/:appId", creds.UpdateOAuthApp)
		vault.DELETE("/oauth-apps/:appId", creds.DeleteOAuthApp)
		vault.POST("/oauth-apps/:appId/secret", creds.RegenerateOAuthSecret)
	}
}
